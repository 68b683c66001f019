package mocks

import (
	"context"
	"time"

	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/persistence"
	"github.com/stretchr/testify/mock"
)

// MockWorkflowRepository is a mock implementation of persistence.WorkflowRepository interface.
type MockWorkflowRepository struct {
	mock.Mock
}

func (m *MockWorkflowRepository) GetAll(ctx context.Context) ([]*models.Workflow, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.Workflow), args.Error(1)
}

func (m *MockWorkflowRepository) Save(ctx context.Context, workflow *models.Workflow) error {
	args := m.Called(ctx, workflow)

	return args.Error(0)
}

func (m *MockWorkflowRepository) GetByID(ctx context.Context, id string) (*models.Workflow, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Workflow), args.Error(1)
}

func (m *MockWorkflowRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)

	return args.Error(0)
}

func (m *MockWorkflowRepository) UpdateStats(ctx context.Context, id string, lastExecutedAt time.Time) error {
	args := m.Called(ctx, id, lastExecutedAt)

	return args.Error(0)
}

// MockExecutionRepository is a mock implementation of persistence.ExecutionRepository interface.
type MockExecutionRepository struct {
	mock.Mock
}

func (m *MockExecutionRepository) Create(ctx context.Context, record *models.ExecutionRecord) error {
	args := m.Called(ctx, record)

	return args.Error(0)
}

func (m *MockExecutionRepository) Update(ctx context.Context, id string, update models.ExecutionUpdate) error {
	args := m.Called(ctx, id, update)

	return args.Error(0)
}

func (m *MockExecutionRepository) GetByID(ctx context.Context, id string) (*models.ExecutionRecord, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.ExecutionRecord), args.Error(1)
}

func (m *MockExecutionRepository) ListByWorkflow(ctx context.Context, workflowID string, limit int) ([]*models.ExecutionRecord, error) {
	args := m.Called(ctx, workflowID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.ExecutionRecord), args.Error(1)
}

func (m *MockExecutionRepository) GetByIdempotencyKey(ctx context.Context, workflowID, key string) (*models.ExecutionRecord, error) {
	args := m.Called(ctx, workflowID, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.ExecutionRecord), args.Error(1)
}

type MockPersistence struct {
	mock.Mock

	workflowRepo  *MockWorkflowRepository
	executionRepo *MockExecutionRepository
}

// NewMockPersistence creates a new MockPersistence with all mock repositories.
func NewMockPersistence() *MockPersistence {
	return &MockPersistence{
		workflowRepo:  &MockWorkflowRepository{},
		executionRepo: &MockExecutionRepository{},
	}
}

// GetMockWorkflowRepository returns the underlying mock workflow repository for setting up expectations.
func (m *MockPersistence) GetMockWorkflowRepository() *MockWorkflowRepository {
	return m.workflowRepo
}

// GetMockExecutionRepository returns the underlying mock execution repository for setting up expectations.
func (m *MockPersistence) GetMockExecutionRepository() *MockExecutionRepository {
	return m.executionRepo
}

func (m *MockPersistence) WorkflowRepository() persistence.WorkflowRepository {
	return m.workflowRepo
}

func (m *MockPersistence) ExecutionRepository() persistence.ExecutionRepository {
	return m.executionRepo
}

func (m *MockPersistence) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

func (m *MockPersistence) Close(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}
