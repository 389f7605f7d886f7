package merger

import (
	"github.com/customeros/mailsync/internal/models"
)

// Tables is an insertion-ordered collection of consolidated tables keyed by
// logical name.
type Tables struct {
	order  []string
	byName map[string]*models.ConsolidatedTable
}

func NewTables() *Tables {
	return &Tables{byName: make(map[string]*models.ConsolidatedTable)}
}

func (t *Tables) Len() int {
	return len(t.order)
}

func (t *Tables) Get(name string) (*models.ConsolidatedTable, bool) {
	table, ok := t.byName[name]
	return table, ok
}

// Names returns logical names in first-seen order.
func (t *Tables) Names() []string {
	names := make([]string, len(t.order))
	copy(names, t.order)
	return names
}

// All returns the tables in first-seen order.
func (t *Tables) All() []*models.ConsolidatedTable {
	all := make([]*models.ConsolidatedTable, 0, len(t.order))
	for _, name := range t.order {
		all = append(all, t.byName[name])
	}
	return all
}

func (t *Tables) getOrCreate(name string) *models.ConsolidatedTable {
	if table, ok := t.byName[name]; ok {
		return table
	}
	table := &models.ConsolidatedTable{Name: name}
	t.byName[name] = table
	t.order = append(t.order, name)
	return table
}
