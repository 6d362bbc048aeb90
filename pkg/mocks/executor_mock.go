// Package mocks provides testify mocks for the execution core's
// collaborator interfaces.
package mocks

import (
	"context"

	"github.com/runwayci/runway/pkg/models"
	"github.com/stretchr/testify/mock"
)

// MockExecutor is a mock implementation of the protocol.Executor interface.
type MockExecutor struct {
	mock.Mock
}

func (m *MockExecutor) Queue(ctx context.Context, execution *models.WorkflowExecution) (string, error) {
	args := m.Called(ctx, execution)

	return args.String(0), args.Error(1)
}

func (m *MockExecutor) StartExecution(ctx context.Context, execution *models.WorkflowExecution) error {
	args := m.Called(ctx, execution)

	return args.Error(0)
}

func (m *MockExecutor) StartQueuedExecution(ctx context.Context, appID, executionID string) (bool, error) {
	args := m.Called(ctx, appID, executionID)

	return args.Bool(0), args.Error(1)
}

// MockInterruptNotifier is a mock implementation of the
// protocol.InterruptManager interface.
type MockInterruptNotifier struct {
	mock.Mock
}

func (m *MockInterruptNotifier) Register(ctx context.Context, interrupt *models.ExecutionInterrupt) error {
	args := m.Called(ctx, interrupt)

	return args.Error(0)
}

// MockArtifactResolver is a mock implementation of the
// execution.ArtifactResolver interface.
type MockArtifactResolver struct {
	mock.Mock
}

func (m *MockArtifactResolver) Resolve(ctx context.Context, appID string, artifactIDs []string) ([]*models.Artifact, error) {
	args := m.Called(ctx, appID, artifactIDs)

	artifacts, _ := args.Get(0).([]*models.Artifact)

	return artifacts, args.Error(1)
}

// MockServiceInstanceResolver is a mock implementation of the
// execution.ServiceInstanceResolver interface.
type MockServiceInstanceResolver struct {
	mock.Mock
}

func (m *MockServiceInstanceResolver) Resolve(ctx context.Context, appID string, instanceIDs []string) ([]*models.ServiceInstance, error) {
	args := m.Called(ctx, appID, instanceIDs)

	instances, _ := args.Get(0).([]*models.ServiceInstance)

	return instances, args.Error(1)
}
