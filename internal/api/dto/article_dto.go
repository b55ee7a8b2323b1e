package dto

type CreateArticleRequest struct {
	Topic string `json:"topic" binding:"required"`
}

type CreateArticleResponse struct {
	ID    string `json:"id"`
	Topic string `json:"topic"`
}

type ListArticlesRequest struct {
	PageSize int    `form:"page_size"`
	Cursor   string `form:"cursor"`
}

type ListArticlesResponse struct {
	Articles   []ArticleSummaryDTO `json:"articles"`
	NextCursor string              `json:"next_cursor,omitempty"`
}

type ArticleSummaryDTO struct {
	ID             string `json:"id"`
	Topic          string `json:"topic"`
	State          string `json:"state"`
	ContentSummary string `json:"content_summary"`
	CreatedAt      string `json:"created_at"`
}

type ArticleDTO struct {
	ID             string `json:"id"`
	Topic          string `json:"topic"`
	State          string `json:"state"`
	Content        string `json:"content"`
	ContentSummary string `json:"content_summary"`
	URLToInfo      string `json:"url_to_info"`
	CreatedAt      string `json:"created_at"`
}

type StateResponse struct {
	State         string `json:"state"`
	InfoMessage   string `json:"info_message"`
	StatusText    string `json:"status_text"`
	ProgressState string `json:"progress_state,omitempty"`
}
