package entity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"traindispatcher/internal/domain"
)

type typedModules struct {
	rows    []domain.Module
	created domain.Module
}

func (t *typedModules) List(context.Context) ([]domain.Module, error) { return t.rows, nil }
func (t *typedModules) Create(_ context.Context, m domain.Module) (domain.Module, error) {
	t.created = m
	m.ID = 10
	return m, nil
}
func (t *typedModules) Update(_ context.Context, id int64, m domain.Module) (domain.Module, error) {
	m.ID = id
	return m, nil
}
func (t *typedModules) Delete(context.Context, int64) error { return nil }

func TestBindConvertsThroughJSON(t *testing.T) {
	ctx := context.Background()
	res := &typedModules{rows: []domain.Module{{ID: 3, Name: "Yard", DistrictID: domain.ID(2), NumberOfEndplates: 4, IsYard: true}}}
	crud := Bind[domain.Module](res)

	list, err := crud.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, int64(3), list[0].ID())
	assert.Equal(t, int64(2), list[0]["district_id"])
	assert.Equal(t, int64(4), list[0]["number_of_endplates"])
	assert.Equal(t, true, list[0]["is_yard"])

	out, err := crud.Create(ctx, Record{"name": "Stub", "district_id": nil, "number_of_endplates": int64(2)})
	require.NoError(t, err)
	assert.Equal(t, int64(10), out.ID())
	assert.Nil(t, res.created.DistrictID)
	assert.Equal(t, 2, res.created.NumberOfEndplates)
}

func TestFieldParseAndFormat(t *testing.T) {
	n := Number{Key: "n", Title: "Endplates", Min: Bound(1), Max: Bound(8)}
	v, err := n.Parse("4")
	require.NoError(t, err)
	assert.Equal(t, int64(4), v)
	_, err = n.Parse("four")
	assert.Error(t, err)
	assert.Error(t, n.Validate(int64(0)))
	assert.Error(t, n.Validate(int64(9)))
	assert.NoError(t, n.Validate(nil))

	d := Date{Key: "start_date", Title: "Start"}
	_, err = d.Parse("2025-02-30")
	assert.Error(t, err)
	v, err = d.Parse(" 2025-06-01 ")
	require.NoError(t, err)
	assert.Equal(t, "2025-06-01", v)

	c := Checkbox{Key: "is_yard", Title: "Yard"}
	v, err = c.Parse("yes")
	require.NoError(t, err)
	assert.Equal(t, "True", c.Format(v, nil))
	assert.Equal(t, "False", c.Format(nil, nil))

	s := Select{Key: "district_id", Title: "District", Source: Remote(domain.KindDistricts, nil)}
	v, err = s.Parse("12")
	require.NoError(t, err)
	assert.Equal(t, "North", s.Format(v, []Option{{Value: int64(12), Label: "North"}}))
	assert.Equal(t, "North", s.Format(float64(12), []Option{{Value: int64(12), Label: "North"}}))
	v, err = s.Parse("")
	require.NoError(t, err)
	assert.Nil(t, v)

	req := Text{Key: "name", Title: "Name", Required: true}
	assert.EqualError(t, req.Validate("  "), "Name is required.")
}

func TestRangeOptions(t *testing.T) {
	assert.Nil(t, rangeOptions(0))
	opts := rangeOptions(3)
	require.Len(t, opts, 3)
	assert.Equal(t, "3", opts[2].Label)

	opts = rangeOptions(1 << 40)
	require.Len(t, opts, domain.MaxEndplates)
	assert.Equal(t, int64(domain.MaxEndplates), opts[len(opts)-1].Value)
}
