package service

import (
	"context"

	"crm-planner/internal/model"
	"crm-planner/internal/repository"
)

// ProjectService provides helpers around projects.
type ProjectService struct {
	repo *repository.ProjectRepository
}

func NewProjectService(repo *repository.ProjectRepository) *ProjectService {
	return &ProjectService{repo: repo}
}

func (s *ProjectService) List(ctx context.Context, user *model.User) ([]model.Project, error) {
	return s.repo.ListByOwner(ctx, user.ID)
}

func (s *ProjectService) Names(ctx context.Context, user *model.User) (map[uint]string, error) {
	return s.repo.Names(ctx, user.ID)
}
