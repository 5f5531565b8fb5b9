package sheets

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chordfold/chordfold/internal/saveflow"
)

// Remote adapts the sheet service to the save pipeline's remote contract.
// Each editing session builds one Remote bound to its owner; pushes keep the
// stored title and replace only the body.
type Remote struct {
	service *Service
	ownerID OwnerID
}

// NewRemote binds the service to one owner for remote pushes.
func NewRemote(service *Service, ownerID OwnerID) (*Remote, error) {
	if service == nil {
		return nil, fmt.Errorf("sheets: remote requires a service")
	}
	if ownerID == "" {
		return nil, fmt.Errorf("sheets: remote requires an owner")
	}
	return &Remote{service: service, ownerID: ownerID}, nil
}

// Update pushes the patched content onto the stored sheet. Missing sheets
// surface as saveflow.ErrRemoteNotFound so the pipeline can stop retrying
// deleted entities.
func (r *Remote) Update(ctx context.Context, entityID string, patch saveflow.ContentPatch) (saveflow.Revision, error) {
	sheetID, err := NewSheetID(entityID)
	if err != nil {
		return saveflow.Revision{}, err
	}

	existing, err := r.service.GetSheet(ctx, r.ownerID, sheetID)
	if errors.Is(err, ErrSheetNotFound) {
		return saveflow.Revision{}, saveflow.ErrRemoteNotFound
	}
	if err != nil {
		return saveflow.Revision{}, err
	}

	updated, err := r.service.UpdateSheet(ctx, r.ownerID, sheetID, Title(existing.Title), patch.Content)
	if errors.Is(err, ErrSheetNotFound) {
		return saveflow.Revision{}, saveflow.ErrRemoteNotFound
	}
	if err != nil {
		return saveflow.Revision{}, err
	}

	return saveflow.Revision{
		Version:   updated.Version,
		UpdatedAt: time.Unix(updated.UpdatedAtSeconds, 0).UTC(),
	}, nil
}
