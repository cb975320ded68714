package database

import (
	"context"

	"github.com/mehanizm/airtable"
	"github.com/sirupsen/logrus"
	"gitlab.com/NebulousLabs/errors"
)

type (
	// AirtableStore is a record store that appends one row per order to an
	// Airtable table.
	AirtableStore struct {
		staticTable  *airtable.Table
		staticLogger *logrus.Entry
	}
)

// NewAirtable creates a record store writing to the table with the given id
// within the given base. An empty apiURL uses the public Airtable API.
func NewAirtable(log *logrus.Entry, apiKey, baseID, tableID, apiURL string) (*AirtableStore, error) {
	if apiKey == "" || baseID == "" || tableID == "" {
		return nil, errors.New("airtable api key, base id and table id are required")
	}
	client := airtable.NewClient(apiKey)
	if apiURL != "" {
		if err := client.SetBaseURL(apiURL); err != nil {
			return nil, errors.AddContext(err, "invalid airtable url")
		}
	}
	return &AirtableStore{
		staticTable:  client.GetTable(baseID, tableID),
		staticLogger: log,
	}, nil
}

// CreateOrder adds a single row for the order. The call is not retried.
func (s *AirtableStore) CreateOrder(ctx context.Context, o OrderRecord) error {
	recs, err := s.staticTable.AddRecordsContext(ctx, &airtable.Records{
		Records: []*airtable.Record{
			{Fields: o.Fields()},
		},
	})
	if err != nil {
		return errors.AddContext(err, "failed to add airtable record")
	}
	if recs != nil && len(recs.Records) > 0 {
		s.staticLogger.WithField("record", recs.Records[0].ID).Debug("Airtable record created")
	}
	return nil
}

// Name returns the name of the store.
func (s *AirtableStore) Name() string {
	return StoreAirtable
}
