package services

import (
	"context"
	"fmt"

	"github.com/dstepanovs/teamplan/internal/common"
	"github.com/dstepanovs/teamplan/internal/logging"
	"github.com/dstepanovs/teamplan/internal/server/authz"
	"github.com/dstepanovs/teamplan/internal/server/pii"
	"github.com/dstepanovs/teamplan/internal/server/store"
)

// MessageService handles the per-project message board. Any project member
// may post and read; messages carry no edit or delete operations.
type MessageService struct {
	store    store.Store
	codec    *pii.Codec
	log      logging.Logger
	pageSize int
}

func NewMessageService(st store.Store, codec *pii.Codec, log logging.Logger, pageSize int) *MessageService {
	return &MessageService{
		store:    st,
		codec:    codec,
		log:      log.With("module", "messages"),
		pageSize: pageSize,
	}
}

// Post appends a message to the project board. Non-members get
// common.ErrNotFound, same as for the project itself.
func (s *MessageService) Post(ctx context.Context, principal authz.Principal, projectID, body string) (pii.Record, error) {
	if body == "" {
		return nil, fmt.Errorf("body required: %w", common.ErrValidation)
	}

	_, target, err := loadProjectTarget(ctx, s.store, projectID)
	if err != nil {
		return nil, err
	}
	if !authz.CanRead(principal, target) {
		return nil, common.ErrNotFound
	}

	enc, err := s.codec.EncryptEntity(pii.KindMessage, pii.Record{"body": body})
	if err != nil {
		return nil, err
	}
	enc["projectID"] = projectID
	enc["authorID"] = principal.ID

	created, err := s.store.Create(ctx, pii.KindMessage, enc)
	if err != nil {
		return nil, err
	}

	dec, err := s.codec.DecryptEntity(ctx, pii.KindMessage, created)
	if err != nil {
		return nil, err
	}
	return sanitize(dec), nil
}

// MessagePage is one page of a project's board.
type MessagePage struct {
	Messages   []pii.Record
	Total      int64
	TotalPages int
}

// List returns a page of the project board with author profiles, newest
// first. A message whose body fails authentication is dropped from the page
// and logged instead of failing the whole board; one corrupt row should not
// take the conversation down with it.
func (s *MessageService) List(ctx context.Context, principal authz.Principal, projectID string, page int) (*MessagePage, error) {
	_, target, err := loadProjectTarget(ctx, s.store, projectID)
	if err != nil {
		return nil, err
	}
	if !authz.CanRead(principal, target) {
		return nil, common.ErrNotFound
	}

	filter := map[string]any{"projectID": projectID}
	total, err := s.store.Count(ctx, pii.KindMessage, filter)
	if err != nil {
		return nil, err
	}

	limit, offset := pageWindow(page, s.pageSize)
	records, err := s.store.FindMany(ctx, pii.KindMessage, store.Query{
		Filter:  filter,
		Include: []string{"author"},
		OrderBy: "createdAt",
		Desc:    true,
		Limit:   limit,
		Offset:  offset,
	})
	if err != nil {
		return nil, err
	}

	decrypted := make([]pii.Record, 0, len(records))
	for _, rec := range records {
		dec, err := s.codec.DecryptGraph(ctx, pii.KindMessage, rec)
		if err != nil {
			s.log.Warn(ctx, "dropping undecryptable message",
				"projectID", projectID, "messageID", str(rec["id"]), "error", err.Error())
			continue
		}
		decrypted = append(decrypted, dec)
	}

	return &MessagePage{
		Messages:   sanitizeAll(decrypted),
		Total:      total,
		TotalPages: totalPages(total, s.pageSize),
	}, nil
}
