// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package database

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/lihao628/massa/backend"
	"github.com/lihao628/massa/common"
)

// BackupDB creates a consistent copy of the full store in a new directory
// named after the given marker and returns the path of that directory. It
// fails if the directory already exists.
func (s *Store[C]) BackupDB(marker C) (string, error) {
	parent, err := s.config.backupDir()
	if err != nil {
		return "", err
	}
	var name string
	if named, ok := any(marker).(interface{ DirName() string }); ok {
		name = named.DirName()
	} else {
		name = fmt.Sprintf("%v", marker)
	}
	directory := filepath.Join(parent, "backup_"+name)
	if err := os.MkdirAll(parent, 0700); err != nil {
		return "", fmt.Errorf("%w: failed to create backup directory: %v", ErrBackend, err)
	}
	lock, err := common.CreateLockFile(directory + ".lock")
	if err != nil {
		return "", fmt.Errorf("%w: backup %s in progress: %v", ErrBackend, directory, err)
	}
	defer lock.Release()
	if _, err := os.Stat(directory); err == nil {
		return "", fmt.Errorf("%w: backup directory %s already exists", ErrBackend, directory)
	}
	if err := s.engine.Checkpoint(directory); err != nil {
		return "", fmt.Errorf("%w: failed to create backup: %v", ErrBackend, err)
	}
	log.Printf("Created state store backup at %v in %s", marker, directory)
	return directory, nil
}

// Reset sets the change ID to the given marker and drops the change logs.
// The stored data is not modified.
func (s *Store[C]) Reset(marker C) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.historyMu.Lock()
	defer s.historyMu.Unlock()
	if err := s.setChangeID(marker); err != nil {
		return err
	}
	s.stateLog.clear()
	s.versioningLog.clear()
	s.metrics.recordHistoryLength(backend.StateSpace, 0)
	s.metrics.recordHistoryLength(backend.VersioningSpace, 0)
	log.Printf("Reset state store to change ID %v", marker)
	return nil
}

// DeletePrefix deletes all keys of the state or versioning space starting
// with the given prefix in a single write.
func (s *Store[C]) DeletePrefix(prefix []byte, space backend.Space, changeID *C) error {
	if space != backend.StateSpace && space != backend.VersioningSpace {
		return fmt.Errorf("%w: can not delete from %v", backend.ErrUnknownSpace, space)
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	deletions := common.NewChanges()
	err := iterate(s.engine, space, prefix, func(key, _ []byte) bool {
		deletions.Delete(key)
		return true
	})
	if err != nil {
		return err
	}
	if space == backend.StateSpace {
		return s.writeChanges(deletions, nil, changeID, false)
	}
	return s.writeChanges(nil, deletions, changeID, false)
}
