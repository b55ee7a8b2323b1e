package runner

import (
	"context"
	"log/slog"
	"strings"

	"github.com/cuongbtq/article-gen/internal/domain"
	"github.com/cuongbtq/article-gen/internal/progress"
)

// callbackAdapter turns pipeline lifecycle hooks into progress events.
// A failed push is logged and dropped so the pipeline never stalls on it.
type callbackAdapter struct {
	ctx       context.Context
	channel   progress.Channel
	articleID string
	logger    *slog.Logger
}

func newCallbackAdapter(ctx context.Context, channel progress.Channel, articleID string, logger *slog.Logger) *callbackAdapter {
	return &callbackAdapter{
		ctx:       ctx,
		channel:   channel,
		articleID: articleID,
		logger:    logger,
	}
}

func (a *callbackAdapter) push(state, message string) {
	a.logger.Debug("Pipeline hook", slog.String("state", state))

	if err := a.channel.Push(a.ctx, a.articleID, domain.ProgressEvent(state, message)); err != nil {
		a.logger.Warn("Failed to relay pipeline hook",
			slog.String("state", state),
			slog.Any("error", err),
		)
	}
}

func (a *callbackAdapter) OnIdentifyPerspectiveStart() {
	a.push("identify_perspective_start",
		"Start identifying different perspectives for researching the topic. (Step 1 / 4)")
}

func (a *callbackAdapter) OnIdentifyPerspectiveEnd(perspectives []string) {
	a.push("identify_perspective_end",
		"Finish identifying perspectives. Will now start gathering information from the following perspectives:\n- "+
			strings.Join(perspectives, "\n- "))
}

func (a *callbackAdapter) OnInformationGatheringStart() {
	a.push("information_gathering_start", "Start browsing the Internet. (Step 2 / 4)")
}

func (a *callbackAdapter) OnDialogueTurnEnd(urls []string) {
	seen := make(map[string]struct{}, len(urls))
	var b strings.Builder
	for _, u := range urls {
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		b.WriteString("Finish browsing ")
		b.WriteString(u)
		b.WriteString("\n")
	}
	a.push("dialogue_turn_end", b.String())
}

func (a *callbackAdapter) OnInformationGatheringEnd() {
	a.push("information_gathering_end", "Finish collecting information.")
}

func (a *callbackAdapter) OnInformationOrganizationStart() {
	a.push("information_organization_start",
		"Start organizing information into a hierarchical outline. (Step 3 / 4)")
}

func (a *callbackAdapter) OnDirectOutlineGenerationEnd(string) {
	a.push("direct_outline_generation_end",
		"Finish leveraging the internal knowledge of the large language model.")
}

func (a *callbackAdapter) OnOutlineRefinementEnd(string) {
	a.push("outline_refinement_end", "Finish leveraging the collected information.")
}
