package graph

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	"driverecover/internal/remote"
)

type parentReference struct {
	ID      string `json:"id,omitempty"`
	DriveID string `json:"driveId,omitempty"`
	Path    string `json:"path,omitempty"`
}

type folderFacet struct {
	ChildCount int `json:"childCount"`
}

type driveItem struct {
	ID                   string           `json:"id"`
	Name                 string           `json:"name"`
	Size                 int64            `json:"size"`
	LastModifiedDateTime time.Time        `json:"lastModifiedDateTime"`
	ParentReference      *parentReference `json:"parentReference,omitempty"`
	Folder               *folderFacet     `json:"folder,omitempty"`
	Children             []driveItem      `json:"children,omitempty"`
}

type childrenPage struct {
	Value    []driveItem `json:"value"`
	NextLink string      `json:"@odata.nextLink"`
	Count    int         `json:"@odata.count"`
}

type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type restoreBody struct {
	ParentReference *parentReference `json:"parentReference,omitempty"`
}

func (d *driveItem) toItem() *remote.Item {
	it := &remote.Item{
		ID:           d.ID,
		Name:         d.Name,
		Size:         d.Size,
		LastModified: d.LastModifiedDateTime,
		IsFolder:     d.Folder != nil,
	}
	if d.ParentReference != nil {
		it.ParentID = d.ParentReference.ID
		it.ParentPath = d.ParentReference.Path
	}
	if d.Folder != nil {
		it.ChildCount = d.Folder.ChildCount
	}
	for i := range d.Children {
		child := d.Children[i].toItem()
		if child.ParentPath == "" {
			child.ParentPath = it.Path()
		}
		if child.ParentID == "" {
			child.ParentID = it.ID
		}
		it.Children = append(it.Children, child)
	}
	return it
}

// queryValues encodes q the way the drive API expects it.
func queryValues(q remote.Query) url.Values {
	v := url.Values{}
	if q.IncludeChildren {
		expand := "children"
		if q.SelectChildren != "" {
			expand += "($select=" + q.SelectChildren + ")"
		}
		v.Set("$expand", expand)
	}
	if q.IncludeDeleted {
		v.Set("includeDeletedItems", "true")
	}
	if q.Select != "" {
		sel := q.Select
		if q.IncludeChildren && !strings.Contains(sel, "children") {
			sel += ",children"
		}
		v.Set("$select", sel)
	}
	if q.OrderBy != "" {
		v.Set("$orderby", q.OrderBy)
	}
	if q.Limit > 0 {
		v.Set("$top", strconv.Itoa(q.Limit))
	}
	return v
}
