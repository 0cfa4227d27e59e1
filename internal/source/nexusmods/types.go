package nexusmods

// API endpoints
const (
	defaultBaseURL    = "https://api.nexusmods.com"
	defaultGraphQLURL = "https://api.nexusmods.com/v2/graphql"
)

// ValidateResult is the account information returned by the validate endpoint
type ValidateResult struct {
	UserID    int64  `json:"user_id"`
	Username  string `json:"name"`
	IsPremium bool   `json:"is_premium"`
	Email     string `json:"email"`
}

// DownloadLink is one CDN mirror entry returned by the download_link endpoint
type DownloadLink struct {
	Name      string `json:"name"`
	ShortName string `json:"short_name"`
	URI       string `json:"URI"`
}

// CollectionInfo describes the latest published revision of a collection
type CollectionInfo struct {
	Name           string
	Slug           string
	GameDomain     string
	RevisionNumber int
	DownloadLink   string
}
