// Package pipeline models the external research and writing pipeline that
// produces an article. The pipeline is opaque: it is told which stages to
// run, reports lifecycle hooks through Callbacks and leaves its output as
// files in a working directory.
package pipeline

import (
	"context"
	"path/filepath"
	"strings"
)

// Flags selects the stages of one pipeline invocation
type Flags struct {
	Research        bool
	Outline         bool
	Article         bool
	Polish          bool
	RemoveDuplicate bool
	PostRun         bool
	Summary         bool
}

// ResearchFlags runs perspective discovery, research and outline drafting
func ResearchFlags() Flags {
	return Flags{Research: true, Outline: true}
}

// WritingFlags runs article writing and polishing
func WritingFlags() Flags {
	return Flags{Article: true, Polish: true}
}

// FinalizeFlags asks the pipeline to post-process and summarize its run
func FinalizeFlags() Flags {
	return Flags{PostRun: true, Summary: true}
}

// Callbacks receives lifecycle hooks while a stage runs.
// Implementations must return quickly; they are called on the pipeline's path.
type Callbacks interface {
	OnIdentifyPerspectiveStart()
	OnIdentifyPerspectiveEnd(perspectives []string)
	OnInformationGatheringStart()
	OnDialogueTurnEnd(urls []string)
	OnInformationGatheringEnd()
	OnInformationOrganizationStart()
	OnDirectOutlineGenerationEnd(outline string)
	OnOutlineRefinementEnd(outline string)
}

// SessionRequest identifies the article a session generates
type SessionRequest struct {
	OwnerID   string
	ArticleID string
	Topic     string
}

// Session is one configured pipeline bound to an article's working directory
type Session interface {
	Run(ctx context.Context, flags Flags, cb Callbacks) error
	Finalize(ctx context.Context) error
	WorkDir() string
	ArticleDir() string
}

// Pipeline creates sessions
type Pipeline interface {
	NewSession(ctx context.Context, req SessionRequest) (Session, error)
}

// WorkDir returns the working directory of an article run
func WorkDir(base, ownerID, articleID string) string {
	return filepath.Join(base, ownerID, articleID)
}

// ArticleDir returns the directory the pipeline writes its artifacts into
func ArticleDir(base, ownerID, articleID, topic string) string {
	return filepath.Join(WorkDir(base, ownerID, articleID), TopicDirName(topic))
}

// TopicDirName is the directory name the pipeline derives from a topic
func TopicDirName(topic string) string {
	return strings.NewReplacer(" ", "_", "/", "_").Replace(topic)
}

// NopCallbacks ignores every hook
type NopCallbacks struct{}

func (NopCallbacks) OnIdentifyPerspectiveStart() {}
func (NopCallbacks) OnIdentifyPerspectiveEnd([]string) {}
func (NopCallbacks) OnInformationGatheringStart() {}
func (NopCallbacks) OnDialogueTurnEnd([]string) {}
func (NopCallbacks) OnInformationGatheringEnd() {}
func (NopCallbacks) OnInformationOrganizationStart() {}
func (NopCallbacks) OnDirectOutlineGenerationEnd(string) {}
func (NopCallbacks) OnOutlineRefinementEnd(string) {}

