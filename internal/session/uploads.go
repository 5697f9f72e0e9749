package session

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// UploadRecord is one stored upload of the current user. Path is the
// object store reference the URL was resolved from; records written before
// it was kept have none.
type UploadRecord struct {
	URL       string
	Path      string
	CreatedAt time.Time
	UserID    string
}

func uploadsCollection(userID string) string {
	return usersCollection + "/" + userID + "/pdfs"
}

func uploadPath(at time.Time) string {
	return fmt.Sprintf("pdfs/emission-estimate-%d.pdf", at.UnixMilli())
}

// UploadAndRecord stores data for the current user and appends a record
// pointing at it. It returns the download URL. The record is written only
// after the object is stored and its URL resolved; if writing it fails the
// object stays behind unreferenced.
func (s *Session) UploadAndRecord(ctx context.Context, data []byte) (string, error) {
	if s.currentUser() == nil {
		return "", s.fail(ctx, OpUploadAndRecord, KindNoUser, MsgNoUser, nil)
	}

	now := s.now().UTC()
	path := uploadPath(now)

	ref, err := s.objects.Store(ctx, path, data)
	if err != nil {
		return "", s.fail(ctx, OpUploadAndRecord, KindFailed, MsgUploadFailed, err)
	}
	url, err := s.objects.ResolveURL(ctx, ref)
	if err != nil {
		s.log.Warn(ctx, "orphaned upload", "path", ref)
		return "", s.fail(ctx, OpUploadAndRecord, KindFailed, MsgUploadFailed, err)
	}

	u := s.currentUser()
	if u == nil {
		s.log.Warn(ctx, "orphaned upload, signed out while storing", "path", ref)
		return "", s.fail(ctx, OpUploadAndRecord, KindNoUser, MsgNoUser, nil)
	}

	doc := map[string]any{
		"url":       url,
		"path":      ref,
		"createdAt": now,
		"userId":    u.UID,
	}
	if _, err := s.docs.WriteDocument(ctx, uploadsCollection(u.UID), "", doc); err != nil {
		s.log.Warn(ctx, "orphaned upload", "path", ref, "user_id", u.UID)
		return "", s.fail(ctx, OpUploadAndRecord, KindFailed, MsgUploadFailed, err)
	}

	s.succeed()
	s.log.Info(ctx, "upload recorded", "path", ref, "user_id", u.UID)
	return url, nil
}

// ListMyUploads returns the current user's uploads, oldest first. URLs are
// resolved again from the stored path, since resolved URLs may expire; the
// recorded URL is kept when that fails.
func (s *Session) ListMyUploads(ctx context.Context) ([]UploadRecord, error) {
	u := s.currentUser()
	if u == nil {
		return nil, s.fail(ctx, OpListMyUploads, KindNoUser, MsgNoUser, nil)
	}

	docs, err := s.docs.ListDocuments(ctx, uploadsCollection(u.UID))
	if err != nil {
		return nil, s.fail(ctx, OpListMyUploads, KindFailed, MsgListFailed, err)
	}

	out := make([]UploadRecord, 0, len(docs))
	for _, d := range docs {
		r := uploadFromDocument(d)
		if r.Path != "" {
			if url, err := s.objects.ResolveURL(ctx, r.Path); err != nil {
				s.log.Warn(ctx, "resolve upload url", "path", r.Path, "error", err)
			} else {
				r.URL = url
			}
		}
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })

	s.succeed()
	return out, nil
}

func uploadFromDocument(d map[string]any) UploadRecord {
	var r UploadRecord
	r.URL, _ = d["url"].(string)
	r.Path, _ = d["path"].(string)
	r.UserID, _ = d["userId"].(string)
	switch v := d["createdAt"].(type) {
	case time.Time:
		r.CreatedAt = v
	case string:
		r.CreatedAt, _ = time.Parse(time.RFC3339Nano, v)
	case int64:
		r.CreatedAt = time.UnixMilli(v).UTC()
	}
	return r
}
