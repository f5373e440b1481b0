package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"crm-planner/internal/model"
)

// ProjectRepository manages projects.
type ProjectRepository struct {
	db *gorm.DB
}

func NewProjectRepository(db *gorm.DB) *ProjectRepository {
	return &ProjectRepository{db: db}
}

// GetOrCreate returns the owner's project with name, creating it on first
// use. An empty name yields nil.
func (r *ProjectRepository) GetOrCreate(ctx context.Context, ownerID uint, name string) (*model.Project, error) {
	if name == "" {
		return nil, nil
	}

	var project model.Project
	db := r.db.WithContext(ctx)
	err := db.Where("owner_id = ? AND name = ?", ownerID, name).First(&project).Error
	switch {
	case err == nil:
		return &project, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		project = model.Project{OwnerID: ownerID, Name: name}
		if err := db.Create(&project).Error; err != nil {
			return nil, fmt.Errorf("create project: %w", err)
		}
		return &project, nil
	default:
		return nil, fmt.Errorf("find project: %w", err)
	}
}

func (r *ProjectRepository) ListByOwner(ctx context.Context, ownerID uint) ([]model.Project, error) {
	var projects []model.Project
	if err := r.db.WithContext(ctx).Where("owner_id = ?", ownerID).Order("name ASC").Find(&projects).Error; err != nil {
		return nil, err
	}
	return projects, nil
}

// Names maps project ids to names for rendering.
func (r *ProjectRepository) Names(ctx context.Context, ownerID uint) (map[uint]string, error) {
	projects, err := r.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	names := make(map[uint]string, len(projects))
	for _, p := range projects {
		names[p.ID] = p.Name
	}
	return names, nil
}
