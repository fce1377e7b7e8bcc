package sync_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/civicportal/portal-sync/internal/artifacts"
	"github.com/civicportal/portal-sync/internal/config"
	"github.com/civicportal/portal-sync/internal/model"
	"github.com/civicportal/portal-sync/internal/parsers"
	"github.com/civicportal/portal-sync/internal/sources"
	"github.com/civicportal/portal-sync/internal/sources/sourcetest"
	"github.com/civicportal/portal-sync/internal/store"
	"github.com/civicportal/portal-sync/internal/sync"
	"github.com/civicportal/portal-sync/internal/sync/mocks"
	"github.com/civicportal/portal-sync/internal/synclog"
)

func newMockedManager(t *testing.T, st *mocks.MockStore) sync.Manager {
	t.Helper()
	renderer, err := artifacts.NewRenderer()
	require.NoError(t, err)
	return sync.NewManager(st, parsers.NewDefaultRegistry(), renderer,
		artifacts.NewGenerator(st, renderer), synclog.NewRecorder(nil))
}

func TestSyncFolder_StoreFailures(t *testing.T) {
	t.Parallel()

	tenant := &model.Tenant{ID: uuid.New(), Key: "springfield", OutputPath: "springfield"}
	folder := &model.FolderConfig{TenantID: tenant.ID, Name: "notices", Source: "fake", ContainerID: "board", Template: "documents"}
	modified := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	newConnectors := func(cfg *config.Config) *sources.ConnectorSet {
		conn := sourcetest.NewConnector()
		conn.PutFile("board", "a", "Agenda.pdf", modified)
		conn.PutFile("board", "b", "Budget.pdf", modified.Add(time.Hour))
		return sources.NewConnectorSet(sourcetest.NewFactory("fake", conn), cfg, tenant)
	}

	t.Run("record write failure skips only that record", func(t *testing.T) {
		t.Parallel()

		ctrl := gomock.NewController(t)
		st := mocks.NewMockStore(ctrl)
		cfg := &config.Config{Engine: config.EngineConfig{OutputRoot: t.TempDir()}}

		st.EXPECT().ListRecords(gomock.Any(), tenant.ID, "notices").Return(map[string]*model.Record{}, nil)
		st.EXPECT().Upsert(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, params store.UpsertParams) (*model.Record, error) {
				if params.ExternalID == "b" {
					return nil, errors.New("unique constraint violated")
				}
				return &model.Record{ExternalID: params.ExternalID, Status: model.StatusActive}, nil
			}).Times(2)
		st.EXPECT().ActiveRecords(gomock.Any(), tenant.ID, "notices").Return([]*model.Record{}, nil)
		st.EXPECT().TouchFolder(gomock.Any(), tenant.ID, "notices", gomock.Any()).Return(nil)

		result, syncErr := newMockedManager(t, st).SyncFolder(context.Background(), cfg, tenant, folder, newConnectors(cfg))
		require.Nil(t, syncErr)
		assert.Equal(t, 1, result.Written)
		assert.Equal(t, 1, result.StoreErrors)
	})

	t.Run("state cannot be loaded", func(t *testing.T) {
		t.Parallel()

		ctrl := gomock.NewController(t)
		st := mocks.NewMockStore(ctrl)
		cfg := &config.Config{Engine: config.EngineConfig{OutputRoot: t.TempDir()}}

		st.EXPECT().ListRecords(gomock.Any(), tenant.ID, "notices").Return(nil, store.ErrUnavailable)
		st.EXPECT().Upsert(gomock.Any(), gomock.Any()).Times(0)
		st.EXPECT().TouchFolder(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

		_, syncErr := newMockedManager(t, st).SyncFolder(context.Background(), cfg, tenant, folder, newConnectors(cfg))
		require.NotNil(t, syncErr)
		assert.Equal(t, sync.ErrorKindStore, syncErr.Kind)
		assert.ErrorIs(t, syncErr, store.ErrUnavailable)
	})

	t.Run("artifact is not written when active records cannot be read", func(t *testing.T) {
		t.Parallel()

		ctrl := gomock.NewController(t)
		st := mocks.NewMockStore(ctrl)
		cfg := &config.Config{Engine: config.EngineConfig{OutputRoot: t.TempDir()}}

		st.EXPECT().ListRecords(gomock.Any(), tenant.ID, "notices").Return(map[string]*model.Record{}, nil)
		st.EXPECT().Upsert(gomock.Any(), gomock.Any()).Return(&model.Record{}, nil).Times(2)
		st.EXPECT().ActiveRecords(gomock.Any(), tenant.ID, "notices").Return(nil, store.ErrUnavailable)

		result, syncErr := newMockedManager(t, st).SyncFolder(context.Background(), cfg, tenant, folder, newConnectors(cfg))
		require.NotNil(t, syncErr)
		assert.Equal(t, sync.ErrorKindArtifact, syncErr.Kind)
		assert.Equal(t, 2, result.Written)
		assert.Nil(t, result.Artifact)
	})
}
