package graphstore

import (
	"github.com/groupfs/groupfs/internal/fserr"
)

// This file holds the multi-statement graph operations that need to commit
// atomically: bracketed in a single database/sql transaction wherever the
// SQLite binding makes that possible, without strengthening the Store
// interface contract that RenameEngine and FSOps program to.

// CreateFileLinkedToGroups creates a new file and links it to every group in
// groups, as one transaction. Used by FSOps.Create's leaf-absent branch.
func (s *Store) CreateFileLinkedToGroups(name string, groups []string) error {
	if err := validateCreatableName("CreateFileLinkedToGroups", name); err != nil {
		return err
	}
	for _, g := range groups {
		if err := validateName("CreateFileLinkedToGroups", g); err != nil {
			return err
		}
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fserr.Wrap(fserr.IO, "CreateFileLinkedToGroups", name, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec("INSERT INTO files (name, value) VALUES (?, NULL)", name); err != nil {
		return fserr.Wrap(fserr.IO, "CreateFileLinkedToGroups", name, err)
	}
	for _, g := range groups {
		if _, err := tx.Exec("INSERT INTO edges (file, grp) VALUES (?, ?)", name, g); err != nil {
			return fserr.Wrap(fserr.IO, "CreateFileLinkedToGroups", name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fserr.Wrap(fserr.IO, "CreateFileLinkedToGroups", name, err)
	}

	s.mu.Lock()
	s.idx.addFile(name)
	for _, g := range groups {
		s.idx.link(name, g)
	}
	s.mu.Unlock()
	s.invalidateClass(name)
	return nil
}

// RenameFileAcrossGroups detaches file from every group in detach and
// attaches it to every group in attach, as one transaction. Used by
// RenameEngine's same-leaf-name move branch.
func (s *Store) RenameFileAcrossGroups(file string, detach, attach []string) error {
	if err := validateName("RenameFileAcrossGroups", file); err != nil {
		return err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fserr.Wrap(fserr.IO, "RenameFileAcrossGroups", file, err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, g := range detach {
		if _, err := tx.Exec("DELETE FROM edges WHERE file = ? AND grp = ?", file, g); err != nil {
			return fserr.Wrap(fserr.IO, "RenameFileAcrossGroups", file, err)
		}
	}
	for _, g := range attach {
		if _, err := tx.Exec("INSERT INTO edges (file, grp) VALUES (?, ?)", file, g); err != nil {
			return fserr.Wrap(fserr.IO, "RenameFileAcrossGroups", file, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fserr.Wrap(fserr.IO, "RenameFileAcrossGroups", file, err)
	}

	s.mu.Lock()
	for _, g := range detach {
		s.idx.unlink(file, g)
	}
	for _, g := range attach {
		s.idx.link(file, g)
	}
	s.mu.Unlock()
	return nil
}

// RenameFileRelocate implements the file/absent rename branch: rename file
// oldName to newName, detach it from every group in detach, and attach it
// to every group in attach — as one transaction.
func (s *Store) RenameFileRelocate(oldName, newName string, detach, attach []string) error {
	if err := validateName("RenameFileRelocate", oldName); err != nil {
		return err
	}
	if err := validateName("RenameFileRelocate", newName); err != nil {
		return err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fserr.Wrap(fserr.IO, "RenameFileRelocate", oldName, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec("UPDATE files SET name = ? WHERE name = ?", newName, oldName); err != nil {
		return fserr.Wrap(fserr.IO, "RenameFileRelocate", oldName, err)
	}
	if _, err := tx.Exec("UPDATE edges SET file = ? WHERE file = ?", newName, oldName); err != nil {
		return fserr.Wrap(fserr.IO, "RenameFileRelocate", oldName, err)
	}
	for _, g := range detach {
		if _, err := tx.Exec("DELETE FROM edges WHERE file = ? AND grp = ?", newName, g); err != nil {
			return fserr.Wrap(fserr.IO, "RenameFileRelocate", newName, err)
		}
	}
	for _, g := range attach {
		if _, err := tx.Exec("INSERT OR IGNORE INTO edges (file, grp) VALUES (?, ?)", newName, g); err != nil {
			return fserr.Wrap(fserr.IO, "RenameFileRelocate", newName, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fserr.Wrap(fserr.IO, "RenameFileRelocate", oldName, err)
	}

	s.mu.Lock()
	s.idx.renameFile(oldName, newName)
	for _, g := range detach {
		s.idx.unlink(newName, g)
	}
	for _, g := range attach {
		s.idx.link(newName, g)
	}
	s.mu.Unlock()
	s.invalidateClass(oldName)
	s.invalidateClass(newName)
	return nil
}

// OverwriteFileOnRename implements the file/file-exists rename branch: copy
// oldName's value into existingName, delete oldName, then attach
// existingName to every group in attachGroups — as one transaction.
func (s *Store) OverwriteFileOnRename(oldName, existingName string, attachGroups []string) error {
	if err := validateName("OverwriteFileOnRename", oldName); err != nil {
		return err
	}
	if err := validateName("OverwriteFileOnRename", existingName); err != nil {
		return err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fserr.Wrap(fserr.IO, "OverwriteFileOnRename", oldName, err)
	}
	defer func() { _ = tx.Rollback() }()

	var value []byte
	if err := tx.QueryRow("SELECT value FROM files WHERE name = ?", oldName).Scan(&value); err != nil {
		return fserr.Wrap(fserr.IO, "OverwriteFileOnRename", oldName, err)
	}
	if _, err := tx.Exec("UPDATE files SET value = ? WHERE name = ?", value, existingName); err != nil {
		return fserr.Wrap(fserr.IO, "OverwriteFileOnRename", existingName, err)
	}
	if _, err := tx.Exec("DELETE FROM edges WHERE file = ?", oldName); err != nil {
		return fserr.Wrap(fserr.IO, "OverwriteFileOnRename", oldName, err)
	}
	if _, err := tx.Exec("DELETE FROM files WHERE name = ?", oldName); err != nil {
		return fserr.Wrap(fserr.IO, "OverwriteFileOnRename", oldName, err)
	}
	for _, g := range attachGroups {
		if err := validateName("OverwriteFileOnRename", g); err != nil {
			return err
		}
		if _, err := tx.Exec("INSERT OR IGNORE INTO edges (file, grp) VALUES (?, ?)", existingName, g); err != nil {
			return fserr.Wrap(fserr.IO, "OverwriteFileOnRename", existingName, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fserr.Wrap(fserr.IO, "OverwriteFileOnRename", oldName, err)
	}

	s.mu.Lock()
	s.idx.removeFile(oldName)
	for _, g := range attachGroups {
		s.idx.link(existingName, g)
	}
	s.mu.Unlock()
	s.invalidateClass(oldName)
	s.invalidateClass(existingName)
	return nil
}
