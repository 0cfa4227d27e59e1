package mo2

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
)

// skyrimSEAppID is the Steam application id used for the Proton prefix
const skyrimSEAppID = "489830"

// GamePath discovers the Skyrim SE installation for this instance:
//
//  1. a "Stock Game" folder inside the MO2 directory (portable setups)
//  2. the gamePath= entry of ModOrganizer.ini, including MO2's
//     @ByteArray(...) encoding
//  3. the default Steam library location
//
// Returns "" when nothing is found; plugin sorting then searches the mod
// folders only, without the game's Data folder.
func (i *Instance) GamePath() string {
	stock := filepath.Join(i.Root, "Stock Game")
	if info, err := os.Stat(stock); err == nil && info.IsDir() {
		return stock
	}

	if path := gamePathFromINI(filepath.Join(i.Root, "ModOrganizer.ini")); path != "" {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			return path
		}
	}

	if home, err := os.UserHomeDir(); err == nil {
		steam := filepath.Join(home, ".local", "share", "Steam",
			"steamapps", "common", "Skyrim Special Edition")
		if info, err := os.Stat(steam); err == nil && info.IsDir() {
			return steam
		}
	}
	return ""
}

// gamePathFromINI extracts the gamePath value from ModOrganizer.ini.
// MO2 writes it either plain or wrapped as @ByteArray(C:/path); backslashes
// are normalised.
func gamePathFromINI(iniPath string) string {
	file, err := os.Open(iniPath)
	if err != nil {
		return ""
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(strings.ToLower(line), "gamepath=") {
			continue
		}
		value := line[len("gamePath="):]
		value = strings.TrimSpace(value)
		if strings.HasPrefix(value, "@ByteArray(") && strings.HasSuffix(value, ")") {
			value = value[len("@ByteArray(") : len(value)-1]
		}
		value = strings.ReplaceAll(value, `\\`, `/`)
		value = strings.ReplaceAll(value, `\`, `/`)
		return value
	}
	return ""
}

// LocalAppData returns the folder holding the game's local application
// data. Under Proton that is the wine prefix inside the Steam compatdata
// for Skyrim SE; natively it is the platform equivalent.
func (i *Instance) LocalAppData() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	prefix := filepath.Join(home, ".local", "share", "Steam",
		"steamapps", "compatdata", skyrimSEAppID,
		"pfx", "drive_c", "users", "steamuser", "AppData", "Local")
	if info, err := os.Stat(prefix); err == nil && info.IsDir() {
		return prefix
	}
	if dir, err := os.UserConfigDir(); err == nil {
		return dir
	}
	return ""
}
