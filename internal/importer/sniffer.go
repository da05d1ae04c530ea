// Package importer implements the CSV ingestion pipeline: delimiter
// sniffing, row normalization, field validation, duplicate detection,
// server-side batch staging and the keep/replace merge applier.
package importer

import (
	"bytes"
	"strings"
	"unicode/utf8"
)

// sniffSampleSize is how much of the upload is inspected when guessing
// the field delimiter.
const sniffSampleSize = 2048

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// decodeText turns raw upload bytes into text. A UTF-8 byte-order mark
// is stripped and invalid byte sequences are replaced rather than
// rejected, so decoding never fails.
func decodeText(data []byte) string {
	data = bytes.TrimPrefix(data, utf8BOM)
	if utf8.Valid(data) {
		return string(data)
	}
	return strings.ToValidUTF8(string(data), string(utf8.RuneError))
}

// sniffDelimiter guesses the field delimiter among comma, semicolon and
// tab by counting occurrences in the first 2KB. Comma wins ties and is
// the fallback when the sample is inconclusive.
func sniffDelimiter(text string) rune {
	sample := text
	if len(sample) > sniffSampleSize {
		sample = sample[:sniffSampleSize]
	}

	best, bestCount := ',', strings.Count(sample, ",")
	for _, candidate := range []rune{';', '\t'} {
		if n := strings.Count(sample, string(candidate)); n > bestCount {
			best, bestCount = candidate, n
		}
	}
	return best
}
