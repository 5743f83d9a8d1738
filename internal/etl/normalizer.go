package etl

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/text/encoding/unicode"
)

var (
	lineErrorPattern   = regexp.MustCompile(`(?s)<LINEERROR>(.*?)</LINEERROR>`)
	trailingSpaceLine  = regexp.MustCompile(`\s+\r?\n`)
	lineBreak          = regexp.MustCompile(`\r?\n|\r`)
	spaceBeforeField   = regexp.MustCompile(`\s+<F`)
	fieldCloseTag      = regexp.MustCompile(`</F\d+>`)
	fieldOpenTag       = regexp.MustCompile(`<F\d+>`)
	numericCharRef     = regexp.MustCompile(`&#\d+;`)
	predefinedEntities = strings.NewReplacer(
		"&amp;", "&",
		"&lt;", "<",
		"&gt;", ">",
		"&quot;", `"`,
		"&apos;", "'",
	)
)

// DecodePayload converts a raw response to UTF-8. The remote system answers
// in UTF-16 when the request was sent that way; a BOM or NUL-interleaved
// bytes give it away.
func DecodePayload(raw []byte) (string, error) {
	if !looksUTF16(raw) {
		return string(raw), nil
	}
	endian := unicode.LittleEndian
	if len(raw) >= 2 && raw[0] == 0xFE && raw[1] == 0xFF {
		endian = unicode.BigEndian
	} else if len(raw) >= 2 && raw[0] == 0x00 && raw[1] != 0x00 {
		endian = unicode.BigEndian
	}
	out, err := unicode.UTF16(endian, unicode.UseBOM).NewDecoder().Bytes(raw)
	if err != nil {
		return "", fmt.Errorf("decode utf-16 payload: %w", err)
	}
	return string(out), nil
}

func looksUTF16(raw []byte) bool {
	if len(raw) < 2 {
		return false
	}
	if (raw[0] == 0xFF && raw[1] == 0xFE) || (raw[0] == 0xFE && raw[1] == 0xFF) {
		return true
	}
	probe := raw
	if len(probe) > 64 {
		probe = probe[:64]
	}
	nuls := bytes.Count(probe, []byte{0})
	return nuls > 0 && nuls >= len(probe)/4
}

// Normalize turns an export payload into rows of exactly fieldCount raw
// cells. The payload is a flat sequence of <F01>..<Fnn> elements; every
// <F01> starts a new row. A <LINEERROR> anywhere is reported as a
// FatalRequestError.
func Normalize(payload string, fieldCount int) ([]NormalizedRow, error) {
	if m := lineErrorPattern.FindStringSubmatch(payload); m != nil {
		return nil, &FatalRequestError{Op: "export", Err: fmt.Errorf("%s", strings.TrimSpace(m[1]))}
	}

	s := strings.Replace(payload, "<ENVELOPE>", "", 1)
	s = strings.Replace(s, "</ENVELOPE>", "", 1)
	s = strings.ReplaceAll(s, "<FLDBLANK></FLDBLANK>", "")
	s = trailingSpaceLine.ReplaceAllString(s, "")
	s = lineBreak.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, "\t", " ")
	s = spaceBeforeField.ReplaceAllString(s, "<F")
	s = fieldCloseTag.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, "<F01>", "\n")
	s = fieldOpenTag.ReplaceAllString(s, "\t")
	s = numericCharRef.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, "&tab;", "")
	s = predefinedEntities.Replace(s)
	s = strings.TrimRight(s, " \r\n")

	segments := strings.Split(s, "\n")
	rows := make([]NormalizedRow, 0, len(segments)-1)
	for _, seg := range segments[1:] {
		cells := strings.Split(seg, "\t")
		row := make(NormalizedRow, fieldCount)
		for i := 0; i < fieldCount && i < len(cells); i++ {
			if cells[i] == emptyDateSentinel {
				continue
			}
			row[i] = cells[i]
		}
		rows = append(rows, row)
	}
	return rows, nil
}
