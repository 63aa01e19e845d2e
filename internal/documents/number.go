package documents

import "fmt"

// FormatNumber renders a document identifier as <prefix><series>-<number>
// with the number left-padded to width digits. Width below one falls back
// to the unpadded value.
func FormatNumber(prefix, series string, number int64, width int) string {
	if width < 1 {
		return fmt.Sprintf("%s%s-%d", prefix, series, number)
	}
	return fmt.Sprintf("%s%s-%0*d", prefix, series, width, number)
}
