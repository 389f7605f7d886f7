package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTableDescriptor_ColumnByName(t *testing.T) {
	d := &TableDescriptor{Name: "Orders", Columns: []Column{
		{Name: "Order ID", DatabaseType: "INTEGER"},
		{Name: "status", DatabaseType: "TEXT"},
	}}

	c, ok := d.ColumnByName("order_id")
	assert.True(t, ok)
	assert.Equal(t, "Order ID", c.Name)
	assert.Equal(t, "INTEGER", c.DatabaseType)

	_, ok = d.ColumnByName("Order ID")
	assert.False(t, ok, "lookups take normalized names")
	_, ok = d.ColumnByName("customer_id")
	assert.False(t, ok)
}
