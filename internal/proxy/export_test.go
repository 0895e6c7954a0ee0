package proxy

// Test hooks for internal helpers.
var (
	FormatDuration = formatDuration
	OriginAllowed  = originAllowed
	StatusSymbol   = statusSymbol
	TruncateDetail = truncateDetail
)
