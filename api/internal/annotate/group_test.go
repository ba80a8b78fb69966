package annotate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitLabel(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"Header > Title", []string{"Header", "Title"}},
		{"  Cart Item 1>Quantity Controls >  Increase Button ", []string{"Cart Item 1", "Quantity Controls", "Increase Button"}},
		{"A >  > B", []string{"A", "B"}},
		{"Solo", []string{"Solo"}},
		{" > ", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, SplitLabel(tt.in))
		})
	}
}

func TestBuildHierarchy_Counts(t *testing.T) {
	nodes := BuildHierarchy([]string{
		"Nav > Home",
		"Nav > Search",
		"Nav",
		"Nav > Menu > Item",
	})

	nav := nodes["Nav"]
	require.NotNil(t, nav)
	assert.Equal(t, 1, nav.Depth)
	assert.Equal(t, 1, nav.DirectLeafCount)
	assert.Len(t, nav.ChildPaths, 3)

	menu := nodes["Nav > Menu"]
	require.NotNil(t, menu)
	assert.Equal(t, "Nav", menu.ParentPath)
	assert.Equal(t, 0, menu.DirectLeafCount)
	assert.Len(t, menu.ChildPaths, 1)

	item := nodes["Nav > Menu > Item"]
	require.NotNil(t, item)
	assert.Equal(t, 3, item.Depth)
	assert.Equal(t, 1, item.DirectLeafCount)
}

func TestGroup_ThreeLeavesPromoteParent(t *testing.T) {
	labels := []string{
		"Page > Card > Title",
		"Page > Card > Price",
		"Page > Card > Buy",
	}
	got := Group(labels)
	for _, l := range labels {
		assert.Equal(t, "Page > Card", got[l], l)
	}
}

func TestGroup_TwoLeavesStayFolded(t *testing.T) {
	got := Group([]string{
		"Page > Form > Email",
		"Page > Form > Password",
	})
	assert.Equal(t, "Page", got["Page > Form > Email"])
	assert.Equal(t, "Page", got["Page > Form > Password"])
}

func TestGroup_DeepestQualifyingWins(t *testing.T) {
	labels := []string{
		"Cart > Item 1 > Controls > Increase",
		"Cart > Item 1 > Controls > Decrease",
		"Cart > Item 1 > Controls > Value",
		"Cart > Item 1 > Name",
		"Cart > Item 1 > Price",
		"Cart > Total",
	}
	got := Group(labels)
	assert.Equal(t, "Cart > Item 1 > Controls", got["Cart > Item 1 > Controls > Increase"])
	assert.Equal(t, "Cart > Item 1", got["Cart > Item 1 > Name"])
	assert.Equal(t, "Cart > Item 1", got["Cart > Item 1 > Price"])
	assert.Equal(t, "Cart", got["Cart > Total"])
}

func TestGroup_DirectLeafThreshold(t *testing.T) {
	// the same path three times through spacing variants counts as three leaves
	got := Group([]string{"Top > Mid > Leaf", "Top>Mid>Leaf", "Top > Mid >Leaf"})
	assert.Equal(t, "Top > Mid > Leaf", got["Top>Mid>Leaf"])
}

func TestGroup_Ungrouped(t *testing.T) {
	got := Group([]string{" > ", "A"})
	assert.Equal(t, UngroupedCategory, got[" > "])
	assert.Equal(t, "A", got["A"])
}

func TestGroup_CompletenessAndIdempotence(t *testing.T) {
	labels := []string{
		"Header > Title", "Header > Icon", "Header > Subtitle",
		"Footer > Button", "Body > List > Row 1", "Body > List > Row 2",
		"Body > List > Row 3", "Body > List > Row 3 > Chevron", "Lonely",
	}
	first := Group(labels)
	require.Len(t, first, len(labels))
	for _, l := range labels {
		_, ok := first[l]
		assert.True(t, ok, "missing %q", l)
	}
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, Group(labels))
	}
}

func TestGroup_EndToEndScenario(t *testing.T) {
	dict := map[string]string{
		"Header > Title":    "page title",
		"Header > Icon":     "logo icon",
		"Header > Subtitle": "subtitle",
		"Footer > Button":   "footer button",
	}
	assign := Group(SortedLabels(dict))
	assert.Equal(t, []string{"Footer", "Header"}, Categories(assign))

	counts := map[string]int{}
	for _, c := range assign {
		counts[c]++
	}
	assert.Equal(t, 3, counts["Header"])
	assert.Equal(t, 1, counts["Footer"])
}
