package domain

type Category struct {
	ID             string `json:"_id"`
	Name           string `json:"name"`
	Slug           string `json:"slug"`
	Description    string `json:"description,omitempty"`
	BannerImageURL string `json:"bannerImageUrl,omitempty"`
	SortOrder      int    `json:"sortOrder"`
}
