package gormstore

import (
	"context"
	"errors"

	"github.com/chirino/portal-service/internal/model"
	registrystore "github.com/chirino/portal-service/internal/registry/store"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

func (s *Store) GetLabelByCode(ctx context.Context, code string) (*model.ClientLabel, error) {
	var label model.ClientLabel
	err := s.db.WithContext(ctx).
		Where("code = ? AND active = ?", code, true).
		First(&label).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &registrystore.NotFoundError{Resource: "client label", ID: code}
	}
	if err != nil {
		return nil, err
	}
	return &label, nil
}

func (s *Store) GetMissiveLabelID(ctx context.Context, code string) (string, error) {
	label, err := s.GetLabelByCode(ctx, code)
	if err != nil {
		var notFound *registrystore.NotFoundError
		if errors.As(err, &notFound) {
			return "", &registrystore.UnknownClientError{Code: code}
		}
		return "", err
	}
	return label.MissiveLabelID, nil
}

func (s *Store) ListLabels(ctx context.Context) ([]model.ClientLabel, error) {
	var labels []model.ClientLabel
	err := s.db.WithContext(ctx).
		Where("active = ?", true).
		Order("code").
		Find(&labels).Error
	return labels, err
}

func (s *Store) ListCodes(ctx context.Context) ([]string, error) {
	var codes []string
	err := s.db.WithContext(ctx).
		Model(&model.ClientLabel{}).
		Where("active = ?", true).
		Order("code").
		Pluck("code", &codes).Error
	return codes, err
}

func (s *Store) ListAllLabels(ctx context.Context) ([]model.ClientLabel, error) {
	var labels []model.ClientLabel
	err := s.db.WithContext(ctx).Order("code").Find(&labels).Error
	return labels, err
}

func (s *Store) CountLabels(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&model.ClientLabel{}).Count(&count).Error
	return count, err
}

// ReconcileLabels diffs the remote taxonomy against the directory and
// applies every transition inside one transaction. Codes missing from
// the remote set are deactivated, never deleted; a code handed out to a
// client must stay resolvable for historical queries.
func (s *Store) ReconcileLabels(ctx context.Context, remote []registrystore.RemoteClientLabel) (*model.LabelSyncStats, error) {
	stats := &model.LabelSyncStats{Total: len(remote)}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing []model.ClientLabel
		if err := tx.Find(&existing).Error; err != nil {
			return err
		}
		byCode := make(map[string]model.ClientLabel, len(existing))
		for _, l := range existing {
			byCode[l.Code] = l
		}

		processed := make(map[string]bool, len(remote))
		for _, r := range remote {
			processed[r.Code] = true

			current, known := byCode[r.Code]
			if !known {
				label := model.ClientLabel{
					ID:             uuid.New(),
					Code:           r.Code,
					Name:           r.Name,
					MissiveLabelID: r.MissiveLabelID,
					Active:         true,
				}
				if err := tx.Create(&label).Error; err != nil {
					return err
				}
				stats.Inserted++
				continue
			}

			// Remote is authoritative for name and label id. A changed id
			// means the label was renamed or recreated upstream.
			if current.MissiveLabelID != r.MissiveLabelID {
				err := tx.Model(&model.ClientLabel{}).
					Where("code = ?", r.Code).
					Updates(map[string]any{
						"name":             r.Name,
						"missive_label_id": r.MissiveLabelID,
					}).Error
				if err != nil {
					return err
				}
				stats.Updated++
			}
			if !current.Active {
				err := tx.Model(&model.ClientLabel{}).
					Where("code = ?", r.Code).
					Updates(map[string]any{
						"active":           true,
						"name":             r.Name,
						"missive_label_id": r.MissiveLabelID,
					}).Error
				if err != nil {
					return err
				}
				stats.Reactivated++
			}
		}

		for code, current := range byCode {
			if processed[code] || !current.Active {
				continue
			}
			err := tx.Model(&model.ClientLabel{}).
				Where("code = ?", code).
				Update("active", false).Error
			if err != nil {
				return err
			}
			stats.Deactivated++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stats, nil
}
