package app

import (
	"tabledash/internal/dbclient"
	"tabledash/internal/domain"
)

// seedDemo fills an in-memory store with the animal shelter sample.
func seedDemo(m *dbclient.MemoryDriver) {
	pets := []struct {
		name, animal string
		age          int
		neutered     string
	}{
		{"Milo", "cat", 3, "yes"},
		{"Bella", "dog", 5, "yes"},
		{"Oscar", "dog", 2, "no"},
		{"Luna", "cat", 1, "no"},
		{"Rocky", "rabbit", 4, "yes"},
		{"Daisy", "dog", 3, "yes"},
	}
	records := make([]domain.Record, 0, len(pets))
	for i, p := range pets {
		records = append(records, domain.Record{
			{Name: "_id", Value: i + 1},
			{Name: "name", Value: p.name},
			{Name: "animal", Value: p.animal},
			{Name: "age", Value: p.age},
			{Name: "neutered", Value: p.neutered},
		})
	}
	m.Seed("shelter", "pets", records...)
	m.Seed("shelter", "adopters")
}
