package service

import (
	"github.com/hashicorp/go-memdb"
)

const (
	tblUsers     = "users"
	tblTemplates = "templates"
	tblDocuments = "documents"
	tblUsage     = "usage"
	tblSigners   = "signers"
)

var schema = &memdb.DBSchema{
	Tables: map[string]*memdb.TableSchema{
		tblUsers: {
			Name: tblUsers,
			Indexes: map[string]*memdb.IndexSchema{
				"id": {
					Name:    "id",
					Unique:  true,
					Indexer: &memdb.StringFieldIndex{Field: "ID"},
				},
				"email": {
					Name:    "email",
					Unique:  true,
					Indexer: &memdb.StringFieldIndex{Field: "Email"},
				},
			},
		},
		tblTemplates: {
			Name: tblTemplates,
			Indexes: map[string]*memdb.IndexSchema{
				"id": {
					Name:    "id",
					Unique:  true,
					Indexer: &memdb.StringFieldIndex{Field: "ID"},
				},
			},
		},
		tblDocuments: {
			Name: tblDocuments,
			Indexes: map[string]*memdb.IndexSchema{
				"id": {
					Name:    "id",
					Unique:  true,
					Indexer: &memdb.StringFieldIndex{Field: "ID"},
				},
				"user_id": {
					Name:    "user_id",
					Indexer: &memdb.StringFieldIndex{Field: "UserID"},
				},
			},
		},
		tblUsage: {
			Name: tblUsage,
			Indexes: map[string]*memdb.IndexSchema{
				"id": {
					Name:    "id",
					Unique:  true,
					Indexer: &memdb.StringFieldIndex{Field: "ID"},
				},
				"user_id": {
					Name:    "user_id",
					Indexer: &memdb.StringFieldIndex{Field: "UserID"},
				},
				"user_action": {
					Name: "user_action",
					Indexer: &memdb.CompoundIndex{
						Indexes: []memdb.Indexer{
							&memdb.StringFieldIndex{Field: "UserID"},
							&memdb.StringFieldIndex{Field: "ActionType"},
						},
					},
				},
			},
		},
		tblSigners: {
			Name: tblSigners,
			Indexes: map[string]*memdb.IndexSchema{
				"id": {
					Name:    "id",
					Unique:  true,
					Indexer: &memdb.StringFieldIndex{Field: "ID"},
				},
				"document_id": {
					Name:    "document_id",
					Indexer: &memdb.StringFieldIndex{Field: "DocumentID"},
				},
			},
		},
	},
}
