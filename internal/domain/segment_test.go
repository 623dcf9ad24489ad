package domain

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2022, 5, 4, 13, 0, 0, 0, time.UTC)

func loadBulletin(t *testing.T) Bulletin {
	t.Helper()
	data, err := os.ReadFile("testdata/hydropac.txt")
	require.NoError(t, err)
	return Bulletin{Source: "HYDROPAC", FetchedAt: testNow, Text: string(data)}
}

func TestSegmenter_Split(t *testing.T) {
	seg := NewSegmenter(DefaultHeaderBlocks, clockwork.NewFakeClockAt(testNow))
	reports := seg.Split(loadBulletin(t))

	require.Len(t, reports, 3)
	assert.True(t, strings.HasPrefix(reports[0].Text, "041130Z MAY 22\nHYDROPAC 1502/22(97)."))
	assert.True(t, strings.HasPrefix(reports[1].Text, "031015Z MAY 22\nHYDROPAC 1490/22(91)."))
	assert.Equal(t, "050800Z MAY 22\nHYDROPAC 1510/22(GEN).\nNAVTEX STATION OFF AIR.//", reports[2].Text)

	inForce := time.Date(2022, 5, 4, 12, 0, 0, 0, time.UTC)
	for _, r := range reports {
		assert.Equal(t, "HYDROPAC", r.Source)
		require.NotNil(t, r.InForce)
		assert.Equal(t, inForce, *r.InForce)
		assert.Equal(t, r.Text, strings.TrimSpace(r.Text))
	}
}

func TestSegmenter_OneDTGPerReport(t *testing.T) {
	seg := NewSegmenter(DefaultHeaderBlocks, clockwork.NewFakeClockAt(testNow))
	for _, r := range seg.Split(loadBulletin(t)) {
		assert.Len(t, dtgLineRe.FindAllString(r.Text, -1), 1, r.Text)
	}
}

func TestSegmenter_BlankLinesInsideReport(t *testing.T) {
	text := "HEADER\n\n" +
		"101010Z JUN 22\nNAVAREA XII 300/22.\nGULF OF ALASKA.\n\n1. ROCKET LAUNCHING.\n2. CANCEL THIS MSG 111200Z JUN 22.//\n\n" +
		"111111Z JUN 22\nNAVAREA XII 301/22.\nBERING SEA.\n1. BUOY ADRIFT.//"
	seg := NewSegmenter(1, nil)
	reports := seg.Split(Bulletin{Source: "Pacific", Text: text})

	require.Len(t, reports, 2)
	assert.Contains(t, reports[0].Text, "1. ROCKET LAUNCHING.")
	assert.Contains(t, reports[0].Text, "CANCEL THIS MSG")
	assert.True(t, strings.HasPrefix(reports[1].Text, "111111Z JUN 22"))
	assert.Nil(t, reports[0].InForce)
}

func TestSegmenter_DropsTextBeforeFirstDTG(t *testing.T) {
	text := "H1\n\nH2\n\nH3\n\nSTRAY TRAILER TEXT\n\n101010Z JUN 22\nHYDROLANT 1/22.\nCARIBBEAN SEA.\n1. TEST.//"
	reports := NewSegmenter(3, nil).Split(Bulletin{Source: "HYDROLANT", Text: text})

	require.Len(t, reports, 1)
	assert.NotContains(t, reports[0].Text, "STRAY")
}

func TestSegmenter_Normalize(t *testing.T) {
	text := "H1\r\n\r\n101010Z JUN 22\r\nNAVAREA IV 1/22. \r\nNORTH ATLANTIC. \nBODY.//"
	reports := NewSegmenter(1, nil).Split(Bulletin{Source: "Atlantic", Text: text})

	require.Len(t, reports, 1)
	assert.Equal(t, "101010Z JUN 22\nNAVAREA IV 1/22.\nNORTH ATLANTIC.\nBODY.//", reports[0].Text)
}

func TestSegmenter_EmptyAndHeaderOnly(t *testing.T) {
	seg := NewSegmenter(DefaultHeaderBlocks, nil)
	assert.Empty(t, seg.Split(Bulletin{Source: "HYDROARC"}))
	assert.Empty(t, seg.Split(Bulletin{Source: "HYDROARC", Text: "A\n\nB\n\nC"}))
}

func TestNewSegmenter_NegativeUsesDefault(t *testing.T) {
	seg := NewSegmenter(-1, nil)
	assert.Equal(t, DefaultHeaderBlocks, seg.headerBlocks)
}

func TestSingleLineAndParagraphs(t *testing.T) {
	single := SingleLine("1. AREA BOUND BY\n   30-00N 123-00E,\t29-00N 124-00E.\n2. CANCEL.")
	assert.Equal(t, "1. AREA BOUND BY 30-00N 123-00E, 29-00N 124-00E. 2. CANCEL.", single)

	paras := SplitParagraphs("HEAD. 1. FIRST PART. A. SUB PART. 2. SECOND.")
	assert.Equal(t, []string{"HEAD.", "FIRST PART.", "SUB PART.", "SECOND."}, paras)
}
