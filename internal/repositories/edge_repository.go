package repositories

import (
	"context"
	"fmt"

	"github.com/anonto42/nano-pulse/backend/internal/apperr"
	"github.com/anonto42/nano-pulse/backend/internal/models"
)

func edgeTable(rel models.Relation) (string, error) {
	if !rel.IsEdge() {
		return "", apperr.Invalid(fmt.Sprintf("%s is not a toggle relation", rel))
	}
	return string(rel), nil
}

// InsertEdge inserts a toggle row; the primary key rejects duplicates
func (s *PostgresStore) InsertEdge(ctx context.Context, edge *models.Edge) error {
	table, err := edgeTable(edge.Relation)
	if err != nil {
		return err
	}
	edge.CreatedAt = s.now().UTC()
	rec := edgeRecord{SubjectID: edge.SubjectID, UserID: edge.UserID, CreatedAt: edge.CreatedAt}
	if err := s.db.WithContext(ctx).Table(table).Create(&rec).Error; err != nil {
		return translate(err, table, edge.SubjectID+"/"+edge.UserID)
	}
	return nil
}

// DeleteEdge deletes a toggle row and reports how many rows went away
func (s *PostgresStore) DeleteEdge(ctx context.Context, edge models.Edge) (int64, error) {
	table, err := edgeTable(edge.Relation)
	if err != nil {
		return 0, err
	}
	res := s.db.WithContext(ctx).Table(table).
		Where("subject_id = ? AND user_id = ?", edge.SubjectID, edge.UserID).
		Delete(&edgeRecord{})
	if res.Error != nil {
		return 0, translate(res.Error, table, edge.SubjectID+"/"+edge.UserID)
	}
	return res.RowsAffected, nil
}

// HasEdge checks whether a toggle row exists
func (s *PostgresStore) HasEdge(ctx context.Context, edge models.Edge) (bool, error) {
	table, err := edgeTable(edge.Relation)
	if err != nil {
		return false, err
	}
	var count int64
	err = s.db.WithContext(ctx).Table(table).
		Where("subject_id = ? AND user_id = ?", edge.SubjectID, edge.UserID).
		Count(&count).Error
	if err != nil {
		return false, translate(err, table, "")
	}
	return count > 0, nil
}

// CountEdges counts the toggle rows of a subject
func (s *PostgresStore) CountEdges(ctx context.Context, rel models.Relation, subjectID string) (int64, error) {
	table, err := edgeTable(rel)
	if err != nil {
		return 0, err
	}
	var count int64
	err = s.db.WithContext(ctx).Table(table).Where("subject_id = ?", subjectID).Count(&count).Error
	return count, translate(err, table, "")
}

// ListEdgeUsers lists the users holding a toggle row on a subject
func (s *PostgresStore) ListEdgeUsers(ctx context.Context, rel models.Relation, subjectID string) ([]string, error) {
	table, err := edgeTable(rel)
	if err != nil {
		return nil, err
	}
	var ids []string
	err = s.db.WithContext(ctx).Table(table).Where("subject_id = ?", subjectID).
		Order("created_at ASC").Pluck("user_id", &ids).Error
	if err != nil {
		return nil, translate(err, table, "")
	}
	return ids, nil
}
