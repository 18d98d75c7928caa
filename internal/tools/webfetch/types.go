package webfetch

import "context"

const (
	// DefaultMaxLength is the page size used when max_length is omitted
	DefaultMaxLength = 5000

	// MaxLengthLimit is the exclusive upper bound for max_length
	MaxLengthLimit = 1000000

	// MaxContentSize caps how much of a response body is read (20MB)
	MaxContentSize = 20 * 1024 * 1024

	// PreviewLength is the number of characters echoed back after a save
	PreviewLength = 500
)

// Sentinel texts are returned in-band so the model sees a readable explanation
const (
	SimplifyFailedMarker = "<error>Page failed to be simplified from HTML</error>"
	NoMoreContentMarker  = "<error>No more content available.</error>"
	truncationNotice     = "\n\n<error>Content truncated. Call the fetch tool with a start_index of %d to get more content.</error>"

	rawContentPrefix = "Content type %s cannot be simplified to markdown, but here is the raw content:\n"
	ReaderPrefix     = "Content fetched via Jina Reader API:\n"
)

// FetchRequest represents the parameters for the fetch tool
type FetchRequest struct {
	URL        string
	MaxLength  int
	StartIndex int
	Raw        bool
}

// FetchAndSaveRequest represents the parameters for the fetch_and_save tool
type FetchAndSaveRequest struct {
	URL      string
	FilePath string
	Raw      bool
}

// FetchResult is the text of a fetched page plus the advisory prefix shown before it.
// Prefix is empty for simplified HTML.
type FetchResult struct {
	Body        string
	Prefix      string
	ContentType string
}

// PaginatedView is one window over a FetchResult body. NextStartIndex is only
// meaningful when Truncated is true.
type PaginatedView struct {
	Text           string
	Truncated      bool
	NextStartIndex int
}

// URLFetcher retrieves a URL using the given identity string
type URLFetcher interface {
	Fetch(ctx context.Context, targetURL, userAgent string, forceRaw bool) (FetchResult, error)
}
