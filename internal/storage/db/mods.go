package db

import (
	"database/sql"
	"fmt"
	"time"
)

// InstalledMod is one manifest row: a mod folder this tool populated
type InstalledMod struct {
	FolderName  string
	ModName     string
	ModID       int64
	FileID      int64
	MD5         string
	Collection  string
	Status      string
	InstalledAt time.Time
}

// RecordInstall inserts or refreshes the manifest row for a mod folder
func (d *DB) RecordInstall(m *InstalledMod) error {
	_, err := d.Exec(`
        INSERT INTO installed_mods (folder_name, mod_name, mod_id, file_id, md5, collection, status, installed_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
        ON CONFLICT(folder_name) DO UPDATE SET
            mod_name = excluded.mod_name,
            mod_id = excluded.mod_id,
            file_id = excluded.file_id,
            md5 = excluded.md5,
            collection = excluded.collection,
            status = excluded.status,
            installed_at = CURRENT_TIMESTAMP
    `, m.FolderName, m.ModName, m.ModID, m.FileID, m.MD5, m.Collection, m.Status)
	if err != nil {
		return fmt.Errorf("recording install: %w", err)
	}
	return nil
}

// GetInstall returns the manifest row for a folder, or nil when untracked
func (d *DB) GetInstall(folderName string) (*InstalledMod, error) {
	var m InstalledMod
	err := d.QueryRow(`
        SELECT folder_name, mod_name, mod_id, file_id, md5, collection, status, installed_at
        FROM installed_mods
        WHERE folder_name = ?
    `, folderName).Scan(&m.FolderName, &m.ModName, &m.ModID, &m.FileID,
		&m.MD5, &m.Collection, &m.Status, &m.InstalledAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting install: %w", err)
	}
	return &m, nil
}

// ListInstalls returns every manifest row, newest first
func (d *DB) ListInstalls() ([]InstalledMod, error) {
	rows, err := d.Query(`
        SELECT folder_name, mod_name, mod_id, file_id, md5, collection, status, installed_at
        FROM installed_mods
        ORDER BY installed_at DESC
    `)
	if err != nil {
		return nil, fmt.Errorf("listing installs: %w", err)
	}
	defer rows.Close()

	var mods []InstalledMod
	for rows.Next() {
		var m InstalledMod
		if err := rows.Scan(&m.FolderName, &m.ModName, &m.ModID, &m.FileID,
			&m.MD5, &m.Collection, &m.Status, &m.InstalledAt); err != nil {
			return nil, fmt.Errorf("scanning install: %w", err)
		}
		mods = append(mods, m)
	}
	return mods, rows.Err()
}
