package runner

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCallbackAdapter_PushesOneEventPerHook(t *testing.T) {
	ch := newTestChannel(t)
	a := newCallbackAdapter(context.Background(), ch, "a1", discardLogger())

	a.OnIdentifyPerspectiveStart()
	a.OnIdentifyPerspectiveEnd([]string{"historian", "engineer"})
	a.OnInformationGatheringStart()
	a.OnDialogueTurnEnd([]string{"https://a", "https://a", "https://b"})
	a.OnInformationGatheringEnd()
	a.OnInformationOrganizationStart()
	a.OnDirectOutlineGenerationEnd("outline")
	a.OnOutlineRefinementEnd("outline")

	msgs := drain(t, ch, "a1")
	require.Len(t, msgs, 8)

	assert.Equal(t, []string{
		"identify_perspective_start",
		"identify_perspective_end",
		"information_gathering_start",
		"dialogue_turn_end",
		"information_gathering_end",
		"information_organization_start",
		"direct_outline_generation_end",
		"outline_refinement_end",
	}, states(msgs))

	assert.Contains(t, msgs[1].Event.Message, "- historian\n- engineer")
	assert.Equal(t, "Finish browsing https://a\nFinish browsing https://b\n", msgs[3].Event.Message)

	for _, m := range msgs {
		assert.False(t, m.Event.IsDone)
		assert.Equal(t, 200, m.Event.Code)
	}
}
