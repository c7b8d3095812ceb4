package remote

// Default field lists requested from the service.
const (
	DefaultSelect         = "id,name,parentReference,folder,lastModifiedDateTime,size"
	DefaultChildrenSelect = "id,name,folder,file,lastModifiedDateTime,size"
	FolderSelect          = "id,name,parentReference"
)

// Query holds the recognized request options. Zero values mean "not set".
type Query struct {
	IncludeDeleted  bool
	IncludeChildren bool
	Select          string
	SelectChildren  string
	OrderBy         string
	Limit           int
	// PageToken continues a listing returned with Listing.NextPageToken.
	PageToken string
}

// Merge returns q with every field that is set in over replacing the value of q.
func (q Query) Merge(over Query) Query {
	if over.IncludeDeleted {
		q.IncludeDeleted = true
	}
	if over.IncludeChildren {
		q.IncludeChildren = true
	}
	if over.Select != "" {
		q.Select = over.Select
	}
	if over.SelectChildren != "" {
		q.SelectChildren = over.SelectChildren
	}
	if over.OrderBy != "" {
		q.OrderBy = over.OrderBy
	}
	if over.Limit > 0 {
		q.Limit = over.Limit
	}
	if over.PageToken != "" {
		q.PageToken = over.PageToken
	}
	return q
}
