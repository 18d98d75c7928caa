package webfetch

import "fmt"

// Paginate returns the window of text starting at startIndex holding at most
// maxLength characters. Indices count Unicode code points, never bytes, so a
// window never splits a character. When more text remains after a full window
// a continuation notice naming the next start index is appended.
func Paginate(text string, startIndex, maxLength int) PaginatedView {
	runes := []rune(text)
	total := len(runes)

	startIndex = max(startIndex, 0)
	if startIndex >= total || maxLength <= 0 {
		return PaginatedView{Text: NoMoreContentMarker}
	}

	end := total
	if maxLength < total-startIndex {
		end = startIndex + maxLength
	}

	slice := string(runes[startIndex:end])
	if slice == "" {
		return PaginatedView{Text: NoMoreContentMarker}
	}

	if end-startIndex == maxLength && total-end > 0 {
		return PaginatedView{
			Text:           slice + fmt.Sprintf(truncationNotice, end),
			Truncated:      true,
			NextStartIndex: end,
		}
	}

	return PaginatedView{Text: slice}
}
