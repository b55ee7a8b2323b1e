package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cuongbtq/article-gen/internal/domain"
)

// Artifact file names written by the pipeline into its article directory
const (
	PolishedArticleFile = "storm_gen_article_polished.txt"
	URLToInfoFile       = "url_to_info.json"
)

// Artifacts is the final output of a finished run
type Artifacts struct {
	Content   string
	URLToInfo string
}

// ReadArtifacts loads the polished article and its citation metadata from dir.
// Every failure wraps domain.ErrArtifactParse.
func ReadArtifacts(dir string) (*Artifacts, error) {
	content, err := os.ReadFile(filepath.Join(dir, PolishedArticleFile))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrArtifactParse, err)
	}
	if strings.TrimSpace(string(content)) == "" {
		return nil, fmt.Errorf("%w: %s is empty", domain.ErrArtifactParse, PolishedArticleFile)
	}

	urlToInfo, err := os.ReadFile(filepath.Join(dir, URLToInfoFile))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrArtifactParse, err)
	}
	if !json.Valid(urlToInfo) {
		return nil, fmt.Errorf("%w: %s is not valid JSON", domain.ErrArtifactParse, URLToInfoFile)
	}

	return &Artifacts{
		Content:   string(content),
		URLToInfo: string(urlToInfo),
	}, nil
}
