package http

// ConflictWarning is the persistent, user-dismissed-only message shown
// when a save hits a version conflict. Transient toasts expire on their
// own; this one must not.
const ConflictWarning = "It seems like the query has been modified by another user. " +
	"Please copy/backup your changes and reload this page."

type createReq struct {
	Name         string                 `json:"name"`
	Description  string                 `json:"description"`
	Query        string                 `json:"query"`
	DataSourceID int64                  `json:"data_source_id"`
	IsDraft      *bool                  `json:"is_draft"`
	Options      map[string]interface{} `json:"options"`
}

type updateReq struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Query       string                 `json:"query"`
	Options     map[string]interface{} `json:"options"`
	Version     int                    `json:"version"`
}

type scheduleReq struct {
	Schedule string `json:"schedule"`
}

type createVisualizationReq struct {
	Type        string                 `json:"type"`
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Options     map[string]interface{} `json:"options"`
}

type editReq struct {
	Text string `json:"text"`
}
