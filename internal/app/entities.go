/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package app

import (
	"fmt"

	"traindispatcher/internal/api"
	"traindispatcher/internal/domain"
	"traindispatcher/internal/entity"
)

// registerSources makes every kind loadable as select options.
func registerSources(cache *entity.Cache, c *api.Client) {
	cache.Register(domain.KindLayouts, entity.Bind[domain.Layout](c.Layouts()))
	cache.Register(domain.KindDispatchers, entity.Bind[domain.Dispatcher](c.Dispatchers()))
	cache.Register(domain.KindDistricts, entity.Bind[domain.District](c.Districts()))
	cache.Register(domain.KindLayoutDistricts, entity.Bind[domain.LayoutDistrict](c.LayoutDistrictLinks()))
	cache.Register(domain.KindLayoutDistrictModules, entity.Bind[domain.LayoutDistrictModule](c.LayoutDistrictModules()))
	cache.Register(domain.KindModules, entity.Bind[domain.Module](c.Modules()))
	cache.Register(domain.KindModuleEndplates, entity.Bind[domain.ModuleEndplate](c.ModuleEndplates()))
	cache.Register(domain.KindTrains, entity.Bind[domain.Train](c.Trains()))
}

// EntityConfig returns the table and form definition of kind.
func EntityConfig(c *api.Client, kind domain.Kind) (entity.Config, error) {
	switch kind {
	case domain.KindLayouts:
		return layoutsConfig(c), nil
	case domain.KindDispatchers:
		return dispatchersConfig(c), nil
	case domain.KindDistricts:
		return districtsConfig(c), nil
	case domain.KindLayoutDistricts:
		return layoutDistrictsConfig(c), nil
	case domain.KindLayoutDistrictModules:
		return layoutDistrictModulesConfig(c), nil
	case domain.KindModules:
		return modulesConfig(c), nil
	case domain.KindModuleEndplates:
		return moduleEndplatesConfig(c), nil
	case domain.KindTrains:
		return trainsConfig(c), nil
	}
	return entity.Config{}, fmt.Errorf("unknown entity kind %q", kind)
}

func stateOptions() []entity.Option {
	out := make([]entity.Option, 0, len(domain.States))
	for _, s := range domain.States {
		out = append(out, entity.Option{Value: s.Code, Label: s.Name})
	}
	return out
}

func layoutsConfig(c *api.Client) entity.Config {
	return entity.Config{
		Name: "Layouts",
		Kind: domain.KindLayouts,
		CRUD: entity.Bind[domain.Layout](c.Layouts()),
		Fields: []entity.Field{
			entity.Text{Key: "name", Title: "Name", Required: true},
			entity.Date{Key: "start_date", Title: "Start Date"},
			entity.Date{Key: "end_date", Title: "End Date"},
			entity.Text{Key: "location_city", Title: "City"},
			entity.Select{Key: "location_state", Title: "State", Source: entity.Static(stateOptions()...)},
		},
		Validate: func(r entity.Record) error {
			l, err := entity.FromRecord[domain.Layout](r)
			if err != nil {
				return err
			}
			if err := l.Validate(); err != nil {
				return &entity.ValidationError{Message: err.Error()}
			}
			return nil
		},
	}
}

func dispatcherLabel(r entity.Record) string {
	d, err := entity.FromRecord[domain.Dispatcher](r)
	if err != nil {
		return ""
	}
	return d.DisplayName()
}

func dispatchersConfig(c *api.Client) entity.Config {
	return entity.Config{
		Name: "Dispatchers",
		Kind: domain.KindDispatchers,
		CRUD: entity.Bind[domain.Dispatcher](c.Dispatchers()),
		Fields: []entity.Field{
			entity.Text{Key: "last_name", Title: "Last Name", Required: true},
			entity.Text{Key: "first_name", Title: "First Name", Required: true},
			entity.Text{Key: "cell_number", Title: "Cell Number"},
		},
	}
}

func districtFields(hideLayout bool) []entity.Field {
	return []entity.Field{
		entity.Text{Key: "name", Title: "Name", Required: true},
		entity.Text{Key: "channel_or_frequency", Title: "Channel or Frequency"},
		entity.Select{Key: "layout_id", Title: "Layout", Source: entity.Remote(domain.KindLayouts, nil), Hide: hideLayout},
		entity.Select{
			Key:      "dispatcher_id",
			Title:    "Dispatcher",
			Source:   entity.Remote(domain.KindDispatchers, dispatcherLabel),
			Required: true,
			Message:  domain.ErrDispatcherRequired.Error(),
		},
	}
}

func districtsConfig(c *api.Client) entity.Config {
	return entity.Config{
		Name:   "Districts",
		Kind:   domain.KindDistricts,
		CRUD:   entity.Bind[domain.District](c.Districts()),
		Fields: districtFields(false),
	}
}

// layoutDistrictsScoped lists only the districts of one layout. The layout
// id is preset and hidden.
func layoutDistrictsScoped(c *api.Client, layoutID int64) entity.Config {
	return entity.Config{
		Name:   "Districts",
		Kind:   domain.KindDistricts,
		CRUD:   entity.Bind[domain.District](c.LayoutDistricts(layoutID)),
		Fields: districtFields(true),
		Preset: entity.Record{"layout_id": layoutID},
	}
}

func layoutDistrictsConfig(c *api.Client) entity.Config {
	return entity.Config{
		Name: "Layout Districts",
		Kind: domain.KindLayoutDistricts,
		CRUD: entity.Bind[domain.LayoutDistrict](c.LayoutDistrictLinks()),
		Fields: []entity.Field{
			entity.Select{Key: "layout_id", Title: "Layout", Source: entity.Remote(domain.KindLayouts, nil), Required: true},
			entity.Select{Key: "district_id", Title: "District", Source: entity.Remote(domain.KindDistricts, nil), Required: true},
		},
	}
}

func linkLabel(r entity.Record) string {
	l, _ := entity.AsInt64(r["layout_id"])
	d, _ := entity.AsInt64(r["district_id"])
	return fmt.Sprintf("#%d (layout %d, district %d)", r.ID(), l, d)
}

func layoutDistrictModulesConfig(c *api.Client) entity.Config {
	return entity.Config{
		Name: "Layout District Modules",
		Kind: domain.KindLayoutDistrictModules,
		CRUD: entity.Bind[domain.LayoutDistrictModule](c.LayoutDistrictModules()),
		Fields: []entity.Field{
			entity.Select{
				Key:      "layout_district_id",
				Title:    "Layout District",
				Source:   entity.Remote(domain.KindLayoutDistricts, linkLabel),
				Required: true,
			},
			entity.Text{Key: "module_key", Title: "Module Key"},
			entity.Text{Key: "name", Title: "Name", Required: true},
			entity.Text{Key: "owner_name", Title: "Owner"},
			entity.Text{Key: "owner_email", Title: "Owner Email"},
			entity.Text{Key: "category", Title: "Category"},
			entity.Number{Key: "number_of_endplates", Title: "Endplates", Min: entity.Bound(1), Max: entity.Bound(domain.MaxEndplates), Initial: 1},
		},
	}
}

func modulesConfig(c *api.Client) entity.Config {
	return entity.Config{
		Name: "Modules",
		Kind: domain.KindModules,
		CRUD: entity.Bind[domain.Module](c.Modules()),
		Fields: []entity.Field{
			entity.Text{Key: "name", Title: "Name", Required: true},
			entity.Select{Key: "district_id", Title: "District", Source: entity.Remote(domain.KindDistricts, nil)},
			entity.Number{Key: "number_of_endplates", Title: "Endplates", Min: entity.Bound(1), Max: entity.Bound(domain.MaxEndplates), Initial: 1},
			entity.Text{Key: "owner", Title: "Owner"},
			entity.Text{Key: "owner_email", Title: "Owner Email"},
			entity.Checkbox{Key: "is_yard", Title: "Yard"},
		},
	}
}

func moduleEndplatesConfig(c *api.Client) entity.Config {
	return entity.Config{
		Name: "Module Endplates",
		Kind: domain.KindModuleEndplates,
		CRUD: entity.Bind[domain.ModuleEndplate](c.ModuleEndplates()),
		Fields: []entity.Field{
			entity.Select{Key: "module_id", Title: "Module", Source: entity.Remote(domain.KindModules, nil), Required: true},
			entity.Select{
				Key:      "endplate_number",
				Title:    "Endplate",
				Source:   entity.Range("module_id", domain.KindModules, "number_of_endplates"),
				Required: true,
			},
			entity.Select{Key: "connected_module_id", Title: "Connected Module", Source: entity.Remote(domain.KindModules, nil)},
		},
	}
}

func trainsConfig(c *api.Client) entity.Config {
	return entity.Config{
		Name: "Trains",
		Kind: domain.KindTrains,
		CRUD: entity.Bind[domain.Train](c.Trains()),
		Fields: []entity.Field{
			entity.Text{Key: "name", Title: "Name", Required: true},
			entity.Text{Key: "status", Title: "Status"},
		},
	}
}
