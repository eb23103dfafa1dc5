package lib

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

const testItemsPageName = "test-items"

// testItems is a minimal Pageable to exercise the pagination helpers
type testItems []string

func (p *testItems) New() Pageable { return &testItems{} }

func init() {
	RegisteredPageables[testItemsPageName] = new(testItems)
}

func TestLoadArray(t *testing.T) {
	// pre-define a source slice that spans multiple pages
	var source []string
	for i := 0; i < 25; i++ {
		source = append(source, fmt.Sprintf("item-%02d", i))
	}
	tests := []struct {
		name          string
		detail        string
		params        PageParams
		expectedCount int
		expectedFirst string
		expectedLast  string
		expectedPages int
	}{
		{
			name:          "zero params",
			detail:        "empty params default to page 1 with 10 per page",
			params:        PageParams{},
			expectedCount: 10,
			expectedFirst: "item-00",
			expectedLast:  "item-09",
			expectedPages: 3,
		},
		{
			name:          "second page",
			detail:        "the second page starts where the first left off",
			params:        PageParams{PageNumber: 2, PerPage: 10},
			expectedCount: 10,
			expectedFirst: "item-10",
			expectedLast:  "item-19",
			expectedPages: 3,
		},
		{
			name:          "partial last page",
			detail:        "the final page only holds the remainder",
			params:        PageParams{PageNumber: 3, PerPage: 10},
			expectedCount: 5,
			expectedFirst: "item-20",
			expectedLast:  "item-24",
			expectedPages: 3,
		},
		{
			name:          "page past the end",
			detail:        "a page beyond the data is empty but still counts the total",
			params:        PageParams{PageNumber: 9, PerPage: 10},
			expectedCount: 0,
			expectedPages: 3,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			// create a page and fill it from the source slice
			page, results := NewPage(test.params, testItemsPageName), new(testItems)
			err := page.LoadArray(source, results, func(i any) ErrorI {
				item, ok := i.(string)
				require.True(t, ok)
				*results = append(*results, item)
				return nil
			})
			require.NoError(t, err)
			// validate the counters against the expected page shape
			require.Equal(t, test.expectedCount, page.Count, test.detail)
			require.Equal(t, 25, page.TotalCount, test.detail)
			require.Equal(t, test.expectedPages, page.TotalPages, test.detail)
			// validate the page contents up to the counted items
			if test.expectedCount != 0 {
				got := *page.Results.(*testItems)
				require.Equal(t, test.expectedFirst, got[0], test.detail)
				require.Equal(t, test.expectedLast, got[test.expectedCount-1], test.detail)
			}
		})
	}
}

func TestPageJSON(t *testing.T) {
	// build a filled page of the registered test pageable
	page := NewPage(PageParams{PageNumber: 1, PerPage: 2}, testItemsPageName)
	page.Results = &testItems{"a", "b"}
	page.Count, page.TotalPages, page.TotalCount = 2, 2, 3
	// convert the page to json bytes
	jsonBytes, err := MarshalJSON(page)
	require.NoError(t, err)
	// convert the bytes back into a page object
	got := new(Page)
	require.NoError(t, UnmarshalJSON(jsonBytes, got))
	// compare got vs expected
	require.Equal(t, page, got)
	// an unregistered type can't be unmarshalled
	e := UnmarshalJSON([]byte(`{"type":"bogus","results":[]}`), new(Page))
	require.Error(t, e)
	require.Equal(t, CodeUnknownPageable, e.Code())
}

func TestHexBytesJSON(t *testing.T) {
	// pre-define the bytes and their hex form
	bz, expected := HexBytes{0xde, 0xad, 0xbe, 0xef}, `"deadbeef"`
	// convert the bytes to json
	got, err := MarshalJSON(bz)
	require.NoError(t, err)
	require.Equal(t, expected, string(got))
	// convert back and compare against the original
	decoded := new(HexBytes)
	require.NoError(t, UnmarshalJSON(got, decoded))
	require.Equal(t, bz, *decoded)
	// the string form matches the raw hex encoding
	require.Equal(t, "deadbeef", bz.String())
	// a non-hex string fails to decode
	_, e := NewHexBytesFromString("not hex")
	require.Error(t, e)
}

func TestLengthPrefixedKeys(t *testing.T) {
	// pre-define the segments of a compound key
	a, b, c := []byte{0x1}, []byte("pool"), []byte{0xaa, 0xbb, 0xcc}
	// join the segments with their length prefixes, nil segments are skipped
	key := JoinLenPrefix(a, nil, b, c)
	// decode the key back into segments
	segments := DecodeLengthPrefixed(key)
	// compare got vs expected
	require.Equal(t, [][]byte{a, b, c}, segments)
}

func TestBytesToTruncatedString(t *testing.T) {
	// a short slice encodes fully
	require.Equal(t, "dead", BytesToTruncatedString([]byte{0xde, 0xad}))
	// a long slice truncates to the first 10 bytes
	long := make([]byte, 32)
	for i := range long {
		long[i] = 0x11
	}
	require.Equal(t, "11111111111111111111", BytesToTruncatedString(long))
}

func TestAppend(t *testing.T) {
	// pre-define two slices where the first has spare capacity
	a := make([]byte, 2, 8)
	a[0], a[1] = 1, 2
	b := []byte{3, 4}
	// join the two slices
	got := Append(a, b)
	require.Equal(t, []byte{1, 2, 3, 4}, got)
	// mutating the result must not write through to the inputs
	got[0] = 99
	require.Equal(t, []byte{1, 2}, a)
	require.Equal(t, []byte{3, 4}, b)
}
