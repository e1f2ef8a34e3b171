package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/wardenhq/warden/internal/model"
)

// CreateFocus inserts a new focus object with version 1.
// Fails with an object-already-exists error when the OID is taken.
func (s *Store) CreateFocus(ctx context.Context, obj *model.FocusObject) error {
	obj.Version = 1
	doc, err := marshalFocusDoc(obj)
	if err != nil {
		return fmt.Errorf("create focus %s: %w", obj.OID, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO focus_objects (oid, type, name, version, doc)
		VALUES (?, ?, ?, ?, ?)
	`, obj.OID, obj.Type, obj.Name, obj.Version, doc)
	if err != nil {
		if isUniqueViolation(err) {
			return model.NewError(model.KindAlreadyExists, "focus %s already exists", obj.OID)
		}
		return fmt.Errorf("create focus %s: %w", obj.OID, err)
	}
	return nil
}

// UpdateFocus persists the object and bumps its version by one. The write
// is optimistic: it only applies when the stored version still equals
// obj.Version, otherwise a concurrent writer got there first and a
// conflict error is returned. On success obj.Version carries the new
// version.
func (s *Store) UpdateFocus(ctx context.Context, obj *model.FocusObject) error {
	newVersion := obj.Version + 1
	probe := *obj
	probe.Version = newVersion
	doc, err := marshalFocusDoc(&probe)
	if err != nil {
		return fmt.Errorf("update focus %s: %w", obj.OID, err)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE focus_objects
		SET type = ?, name = ?, version = ?, doc = ?
		WHERE oid = ? AND version = ?
	`, obj.Type, obj.Name, newVersion, doc, obj.OID, obj.Version)
	if err != nil {
		return fmt.Errorf("update focus %s: %w", obj.OID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update focus %s: %w", obj.OID, err)
	}
	if affected == 0 {
		seen, found, verr := s.FocusVersion(ctx, obj.OID)
		if verr != nil {
			return verr
		}
		if !found {
			return model.NewError(model.KindNotFound, "focus %s not found", obj.OID)
		}
		return &model.ConflictDetectedError{
			FocusOID:    obj.OID,
			BaseVersion: obj.Version,
			SeenVersion: seen,
		}
	}

	obj.Version = newVersion
	return nil
}

// GetFocus reads a focus object by OID.
func (s *Store) GetFocus(ctx context.Context, oid string) (*model.FocusObject, error) {
	var doc string
	err := s.db.QueryRowContext(ctx, `
		SELECT doc FROM focus_objects WHERE oid = ?
	`, oid).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.NewError(model.KindNotFound, "focus %s not found", oid)
	}
	if err != nil {
		return nil, fmt.Errorf("get focus %s: %w", oid, err)
	}

	var obj model.FocusObject
	if err := json.Unmarshal([]byte(doc), &obj); err != nil {
		return nil, fmt.Errorf("get focus %s: unmarshal doc: %w", oid, err)
	}
	return &obj, nil
}

// DeleteFocus removes a focus object. Deleting a missing object is a
// no-op (idempotent).
func (s *Store) DeleteFocus(ctx context.Context, oid string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM focus_objects WHERE oid = ?`, oid)
	if err != nil {
		return fmt.Errorf("delete focus %s: %w", oid, err)
	}
	return nil
}

// FocusVersion returns the stored version of a focus object.
// found is false when the object does not exist (version 0).
func (s *Store) FocusVersion(ctx context.Context, oid string) (version int64, found bool, err error) {
	err = s.db.QueryRowContext(ctx, `
		SELECT version FROM focus_objects WHERE oid = ?
	`, oid).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("focus version %s: %w", oid, err)
	}
	return version, true, nil
}

// marshalFocusDoc serializes the full object document. Storage uses plain
// JSON - canonical form is only required for content-addressed hashing.
func marshalFocusDoc(obj *model.FocusObject) (string, error) {
	b, err := json.Marshal(obj)
	if err != nil {
		return "", fmt.Errorf("marshal focus doc: %w", err)
	}
	return string(b), nil
}

// isUniqueViolation detects a primary-key/unique constraint failure
// without depending on driver-specific error types.
func isUniqueViolation(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "PRIMARY KEY constraint failed"))
}
