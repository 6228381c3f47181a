package entity

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"traindispatcher/internal/domain"
)

// memCRUD is an in-memory collection that counts calls.
type memCRUD struct {
	mu     sync.Mutex
	rows   []Record
	nextID int64
	calls  int
	fail   error
}

func newMem(rows ...Record) *memCRUD {
	m := &memCRUD{}
	for _, r := range rows {
		if id := r.ID(); id > m.nextID {
			m.nextID = id
		}
		m.rows = append(m.rows, r)
	}
	return m
}

func (m *memCRUD) List(context.Context) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.fail != nil {
		return nil, m.fail
	}
	out := make([]Record, len(m.rows))
	for i, r := range m.rows {
		out[i] = r.Clone()
	}
	return out, nil
}

func (m *memCRUD) Create(_ context.Context, r Record) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.fail != nil {
		return nil, m.fail
	}
	m.nextID++
	r = r.Clone()
	r["id"] = m.nextID
	m.rows = append(m.rows, r)
	return r, nil
}

func (m *memCRUD) Update(_ context.Context, id int64, r Record) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.fail != nil {
		return nil, m.fail
	}
	for i, row := range m.rows {
		if row.ID() == id {
			r = r.Clone()
			r["id"] = id
			m.rows[i] = r
			return r, nil
		}
	}
	return nil, errors.New(`{"error":"not found"}`)
}

func (m *memCRUD) Delete(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.fail != nil {
		return m.fail
	}
	for i, row := range m.rows {
		if row.ID() == id {
			m.rows = append(m.rows[:i], m.rows[i+1:]...)
			return nil
		}
	}
	return errors.New(`{"error":"not found"}`)
}

func (m *memCRUD) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func dispatcherLabel(r Record) string {
	f, _ := r["first_name"].(string)
	l, _ := r["last_name"].(string)
	return f + " " + l
}

func districtConfig(crud CRUD) Config {
	return Config{
		Name: "Districts",
		Kind: domain.KindDistricts,
		CRUD: crud,
		Fields: []Field{
			Text{Key: "name", Title: "Name", Required: true},
			Select{Key: "dispatcher_id", Title: "Dispatcher", Source: Remote(domain.KindDispatchers, dispatcherLabel),
				Required: true, Message: domain.ErrDispatcherRequired.Error()},
		},
	}
}

func TestDistrictWithoutDispatcherIsBlockedWithoutCalls(t *testing.T) {
	ctx := context.Background()
	cache := NewCache()
	dispatchers := newMem(Record{"id": int64(1), "first_name": "Ada", "last_name": "L"})
	cache.Register(domain.KindDispatchers, dispatchers)
	districts := newMem()
	m := NewManager(districtConfig(districts), cache)
	defer m.Close()
	require.NoError(t, m.Load(ctx))
	before := districts.Calls()

	require.NoError(t, m.OpenCreate())
	require.NoError(t, m.Set("name", "North"))
	err := m.Submit(ctx)

	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "You must select a Dispatcher for this District.", ve.Error())
	assert.Equal(t, "dispatcher_id", ve.Field)
	assert.Equal(t, before, districts.Calls(), "no request may be sent")
	assert.Equal(t, CreateOpen, m.State())
}

func TestSelectColumnsShowNames(t *testing.T) {
	ctx := context.Background()
	cache := NewCache()
	cache.Register(domain.KindDispatchers, newMem(Record{"id": int64(7), "first_name": "Grace", "last_name": "Hopper"}))
	districts := newMem(
		Record{"id": int64(1), "name": "North", "dispatcher_id": int64(7)},
		Record{"id": int64(2), "name": "South", "dispatcher_id": int64(99)},
		Record{"id": int64(3), "name": "East", "dispatcher_id": nil},
	)
	m := NewManager(districtConfig(districts), cache)
	defer m.Close()

	// before load the raw value is all there is
	assert.Empty(t, m.Rows())
	require.NoError(t, m.Load(ctx))

	rows := m.Rows()
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"Name", "Dispatcher"}, m.Columns())
	assert.Equal(t, []string{"North", "Grace Hopper"}, rows[0].Cells)
	assert.Equal(t, "#99 (missing)", rows[1].Cells[1])
	assert.Equal(t, "", rows[2].Cells[1])
}

func endplateSetup(t *testing.T) (*Manager, *memCRUD) {
	t.Helper()
	cache := NewCache()
	cache.Register(domain.KindModules, newMem(
		Record{"id": int64(1), "name": "Junction", "number_of_endplates": int64(4)},
		Record{"id": int64(2), "name": "Stub", "number_of_endplates": int64(2)},
		Record{"id": int64(3), "name": "Corrupt", "number_of_endplates": int64(1 << 40)},
	))
	plates := newMem()
	m := NewManager(Config{
		Name: "Module Endplates",
		Kind: domain.KindModuleEndplates,
		CRUD: plates,
		Fields: []Field{
			Select{Key: "module_id", Title: "Module", Source: Remote(domain.KindModules, nil), Required: true},
			Select{Key: "endplate_number", Title: "Endplate", Source: Range("module_id", domain.KindModules, "number_of_endplates"), Required: true},
			Select{Key: "connected_module_id", Title: "Connected Module", Source: Remote(domain.KindModules, nil)},
		},
	}, cache)
	t.Cleanup(m.Close)
	require.NoError(t, m.Load(context.Background()))
	return m, plates
}

func TestEndplateChoicesFollowModuleCount(t *testing.T) {
	m, _ := endplateSetup(t)
	require.NoError(t, m.OpenCreate())
	assert.Empty(t, m.Choices("endplate_number"), "no module chosen yet")

	require.NoError(t, m.Set("module_id", "1"))
	var got []int64
	for _, o := range m.Choices("endplate_number") {
		n, _ := AsInt64(o.Value)
		got = append(got, n)
	}
	assert.Equal(t, []int64{1, 2, 3, 4}, got)

	require.NoError(t, m.Set("endplate_number", "4"))
	require.NoError(t, m.Set("module_id", "2"))
	assert.Nil(t, m.Draft()["endplate_number"], "out of range value is cleared")
	assert.Len(t, m.Choices("endplate_number"), 2)
}

func TestHugeEndplateCountIsCapped(t *testing.T) {
	m, _ := endplateSetup(t)
	require.NoError(t, m.OpenCreate())
	require.NoError(t, m.SetValue("module_id", int64(3)))
	opts := m.Choices("endplate_number")
	require.Len(t, opts, domain.MaxEndplates)

	require.NoError(t, m.SetValue("endplate_number", int64(domain.MaxEndplates+1)))
	var ve *ValidationError
	assert.True(t, errors.As(m.Validate(), &ve))
}

func TestEndplateOutOfRangeRejected(t *testing.T) {
	m, plates := endplateSetup(t)
	require.NoError(t, m.OpenCreate())
	require.NoError(t, m.Set("module_id", "2"))
	require.NoError(t, m.SetValue("endplate_number", int64(3)))
	before := plates.Calls()
	var ve *ValidationError
	require.True(t, errors.As(m.Submit(context.Background()), &ve))
	assert.Equal(t, before, plates.Calls())

	require.NoError(t, m.Set("endplate_number", "2"))
	require.NoError(t, m.Submit(context.Background()))
	assert.Equal(t, Idle, m.State())
	require.Len(t, m.Rows(), 1)
	assert.Equal(t, []string{"Stub", "2", ""}, m.Rows()[0].Cells)
}

func TestStateMachine(t *testing.T) {
	ctx := context.Background()
	crud := newMem(Record{"id": int64(3), "name": "Z1", "status": "staged"})
	m := NewManager(Config{Kind: domain.KindTrains, CRUD: crud, Fields: []Field{
		Text{Key: "name", Title: "Name", Required: true},
		Select{Key: "status", Title: "Status", Source: Static(Option{Value: "staged", Label: "Staged"}, Option{Value: "running", Label: "Running"}), Required: true},
	}}, nil)
	defer m.Close()
	assert.Equal(t, Idle, m.State())
	require.NoError(t, m.Load(ctx))

	require.NoError(t, m.OpenCreate())
	assert.Equal(t, CreateOpen, m.State())
	assert.Equal(t, int64(4), m.Draft().ID(), "draft id is max+1")
	assert.Equal(t, "staged", m.Draft()["status"])
	assert.ErrorIs(t, m.OpenEdit(3), ErrPopupOpen)
	assert.ErrorIs(t, m.OpenCreate(), ErrPopupOpen)
	require.NoError(t, m.Cancel())
	assert.Equal(t, Idle, m.State())
	assert.ErrorIs(t, m.Cancel(), ErrNoPopup)
	assert.ErrorIs(t, m.Submit(ctx), ErrNoPopup)

	require.NoError(t, m.OpenEdit(3))
	assert.Equal(t, EditOpen, m.State())
	assert.Equal(t, int64(3), m.EditingID())
	require.NoError(t, m.Set("status", "running"))
	assert.Error(t, m.Set("status", "derailed"))
	require.NoError(t, m.Submit(ctx))
	assert.Equal(t, Idle, m.State())
	assert.Equal(t, []string{"Z1", "Running"}, m.Rows()[0].Cells)

	assert.ErrorIs(t, m.OpenEdit(42), ErrNoRecord)
}

func TestLoadFailureSetsErrorState(t *testing.T) {
	crud := newMem()
	crud.fail = errors.New(`{"error":"database is locked"}`)
	m := NewManager(Config{Kind: domain.KindTrains, CRUD: crud, Fields: []Field{Text{Key: "name", Title: "Name"}}}, nil)
	defer m.Close()

	require.Error(t, m.Load(context.Background()))
	assert.Equal(t, Error, m.State())
	assert.Equal(t, `{"error":"database is locked"}`, m.Err())

	crud.fail = nil
	require.NoError(t, m.Load(context.Background()))
	assert.Equal(t, Idle, m.State())
	assert.Empty(t, m.Err())
}

func TestSubmitFailureKeepsFormOpen(t *testing.T) {
	ctx := context.Background()
	crud := newMem()
	m := NewManager(Config{Kind: domain.KindTrains, CRUD: crud, Fields: []Field{Text{Key: "name", Title: "Name"}}}, nil)
	defer m.Close()
	require.NoError(t, m.OpenCreate())
	crud.fail = errors.New("boom")
	require.Error(t, m.Submit(ctx))
	assert.Equal(t, CreateOpen, m.State())
	assert.Equal(t, "boom", m.Err())
}

func TestDeleteAsksFirst(t *testing.T) {
	ctx := context.Background()
	crud := newMem(Record{"id": int64(1), "name": "Z1"})
	m := NewManager(Config{Kind: domain.KindTrains, CRUD: crud, Fields: []Field{Text{Key: "name", Title: "Name"}}}, nil)
	defer m.Close()
	require.NoError(t, m.Load(ctx))
	before := crud.Calls()

	var asked string
	require.NoError(t, m.Delete(ctx, 1, func(msg string) bool { asked = msg; return false }))
	assert.Equal(t, DeletePrompt, asked)
	assert.Equal(t, before, crud.Calls(), "declined delete sends nothing")

	require.NoError(t, m.Delete(ctx, 1, func(string) bool { return true }))
	assert.Empty(t, m.Rows(), "list is refetched after delete")
}

func TestInvalidationReloadsDependentOptions(t *testing.T) {
	ctx := context.Background()
	cache := NewCache()
	dispatchers := newMem()
	cache.Register(domain.KindDispatchers, dispatchers)

	dm := NewManager(Config{Kind: domain.KindDispatchers, CRUD: dispatchers, Fields: []Field{
		Text{Key: "first_name", Title: "First", Required: true},
		Text{Key: "last_name", Title: "Last", Required: true},
	}}, cache)
	defer dm.Close()
	districts := newMem()
	m := NewManager(districtConfig(districts), cache)
	defer m.Close()
	require.NoError(t, dm.Load(ctx))
	require.NoError(t, m.Load(ctx))
	assert.Empty(t, m.Choices("dispatcher_id"))

	var parentRefreshed int
	unsub := cache.Subscribe(domain.KindDispatchers, func(context.Context, domain.Kind) { parentRefreshed++ })
	defer unsub()

	require.NoError(t, dm.OpenCreate())
	require.NoError(t, dm.Set("first_name", "Ada"))
	require.NoError(t, dm.Set("last_name", "Lovelace"))
	require.NoError(t, dm.Submit(ctx))

	require.Len(t, dm.Rows(), 1)
	choices := m.Choices("dispatcher_id")
	require.Len(t, choices, 1)
	assert.Equal(t, "Ada Lovelace", choices[0].Label)
	assert.Equal(t, 1, parentRefreshed)
}

func TestClosedManagerDropsResults(t *testing.T) {
	crud := newMem(Record{"id": int64(1), "name": "Z1"})
	m := NewManager(Config{Kind: domain.KindTrains, CRUD: crud, Fields: []Field{Text{Key: "name", Title: "Name"}}}, nil)
	changed := 0
	m.OnChange(func() { changed++ })
	m.Close()
	require.NoError(t, m.Load(context.Background()))
	assert.Empty(t, m.Rows())
	assert.Zero(t, changed)
}

func TestPresetIsForcedIntoDrafts(t *testing.T) {
	crud := newMem(Record{"id": int64(1), "name": "North", "layout_id": int64(2)})
	m := NewManager(Config{Kind: domain.KindDistricts, CRUD: crud, Preset: Record{"layout_id": int64(5)}, Fields: []Field{
		Text{Key: "name", Title: "Name"},
		Number{Key: "layout_id", Title: "Layout", Hide: true},
	}}, nil)
	defer m.Close()
	require.NoError(t, m.Load(context.Background()))
	assert.Equal(t, []string{"Name"}, m.Columns())
	require.NoError(t, m.OpenCreate())
	assert.Equal(t, int64(5), m.Draft()["layout_id"])
}
