package etl

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
)

const samplePayload = `<ENVELOPE>
 <F01>g1</F01>
 <F02>Cash &amp; Bank</F02>
 <F03>ñ</F03>
 <FLDBLANK></FLDBLANK>
 <F01>g2</F01>
 <F02>Sales</F02>
 <F03>2024-04-01</F03>
 <FLDBLANK></FLDBLANK>
</ENVELOPE>
`

func TestNormalize_Rows(t *testing.T) {
	rows, err := Normalize(samplePayload, 3)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, NormalizedRow{"g1", "Cash & Bank", ""}, rows[0])
	assert.Equal(t, NormalizedRow{"g2", "Sales", "2024-04-01"}, rows[1])
}

func TestNormalize_PadsAndTruncates(t *testing.T) {
	payload := "<ENVELOPE><F01>a</F01><F02>b</F02><F01>c</F01><F02>d</F02><F03>e</F03></ENVELOPE>"

	rows, err := Normalize(payload, 2)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, NormalizedRow{"a", "b"}, rows[0])
	assert.Equal(t, NormalizedRow{"c", "d"}, rows[1])

	rows, err = Normalize(payload, 4)
	require.NoError(t, err)
	assert.Equal(t, NormalizedRow{"a", "b", "", ""}, rows[0])
	assert.Equal(t, NormalizedRow{"c", "d", "e", ""}, rows[1])
}

func TestNormalize_Empty(t *testing.T) {
	rows, err := Normalize("<ENVELOPE></ENVELOPE>", 3)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestNormalize_Entities(t *testing.T) {
	payload := "<ENVELOPE><F01>A&amp;lt;B&#13;&#10;</F01><F02>&quot;x&quot;&tab;&apos;y&apos; &gt; 1</F02></ENVELOPE>"

	rows, err := Normalize(payload, 2)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "A&lt;B", rows[0][0])
	assert.Equal(t, `"x"'y' > 1`, rows[0][1])
}

func TestNormalize_TabsInValues(t *testing.T) {
	payload := "<ENVELOPE><F01>a\tb</F01><F02>c</F02></ENVELOPE>"

	rows, err := Normalize(payload, 2)
	require.NoError(t, err)
	assert.Equal(t, NormalizedRow{"a b", "c"}, rows[0])
}

func TestNormalize_LineError(t *testing.T) {
	_, err := Normalize("<ENVELOPE><LINEERROR>Could not find Report 'X'!</LINEERROR></ENVELOPE>", 2)
	require.Error(t, err)

	var fatal *FatalRequestError
	require.True(t, errors.As(err, &fatal))
	assert.Contains(t, err.Error(), "Could not find Report")
	assert.False(t, IsTransient(err))
}

func TestDecodePayload_UTF8(t *testing.T) {
	s, err := DecodePayload([]byte(samplePayload))
	require.NoError(t, err)
	assert.Equal(t, samplePayload, s)
}

func TestDecodePayload_UTF16(t *testing.T) {
	for name, enc := range map[string]encoding.Encoding{
		"with bom":    unicode.UTF16(unicode.LittleEndian, unicode.UseBOM),
		"without bom": unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM),
	} {
		t.Run(name, func(t *testing.T) {
			raw, err := enc.NewEncoder().Bytes([]byte(samplePayload))
			require.NoError(t, err)

			s, err := DecodePayload(raw)
			require.NoError(t, err)
			assert.Equal(t, samplePayload, s)

			rows, err := Normalize(s, 3)
			require.NoError(t, err)
			assert.Len(t, rows, 2)
		})
	}
}
