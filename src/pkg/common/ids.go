package common

import "fmt"

type FileID uint64

type PageID uint64

const InvalidPageID = ^PageID(0)

// PageIdentity is the key a cached page is known by: the file it belongs
// to plus its page number inside that file.
type PageIdentity struct {
	FileID FileID
	PageID PageID
}

func NewPageIdentity(fileID FileID, pageID PageID) PageIdentity {
	return PageIdentity{
		FileID: fileID,
		PageID: pageID,
	}
}

func (p PageIdentity) String() string {
	return fmt.Sprintf("%d:%d", p.FileID, p.PageID)
}
