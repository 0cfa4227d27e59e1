package core

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"nexusbridge/internal/domain"
	"nexusbridge/internal/mo2"
	"nexusbridge/internal/sorter"
	"nexusbridge/internal/source/nexusmods"
	"nexusbridge/internal/storage/db"
)

// scratchDirName is the per-run working area under the MO2 root; scratch
// paths include each task's ordinal so no two installs ever share one.
const scratchDirName = ".nexusbridge-work"

// CollectionURLPattern matches nexusmods.com collection URLs and captures
// the game domain and collection slug.
var CollectionURLPattern = regexp.MustCompile(`nexusmods\.com/(?:games/)?([^/]+)/collections/([^/?#]+)`)

// NXMURLPattern matches nxm:// links handed over by the browser
var NXMURLPattern = regexp.MustCompile(`^nxm://([^/]+)/mods/(\d+)/files/(\d+)`)

// Service orchestrates the two-phase install of a collection into an MO2
// instance: download everything, install everything, then sort.
type Service struct {
	Collection *domain.Collection
	Instance   *mo2.Instance
	Client     *nexusmods.Client
	Downloader *Downloader
	Extractor  *Extractor
	Printer    *Printer
	Manifest   *db.DB // optional; nil disables manifest tracking

	Profile string
	AutoYes bool

	// Confirm asks the user to continue after partial download failure.
	// The CLI wires a y/n prompt on stdin; a nil Confirm counts as refusal.
	Confirm func(prompt string) bool
}

// RunResult is the final counts summary
type RunResult struct {
	Downloaded int
	Installed  int
	Skipped    int
	Failed     int
	Unverified int
}

// Run executes the full install sequence
func (s *Service) Run(ctx context.Context) (*RunResult, error) {
	if err := s.Instance.EnsureLayout(s.Profile); err != nil {
		return nil, err
	}

	for i := range s.Collection.Mods {
		m := &s.Collection.Mods[i]
		m.FolderName = domain.FolderNameFor(m)
	}

	archives, downloaded, failedDownloads, err := s.downloadPhase(ctx)
	if err != nil {
		return nil, err
	}

	result := &RunResult{Downloaded: downloaded}

	if len(failedDownloads) > 0 {
		s.Printer.Printf("%d downloads failed after all retries.\n", len(failedDownloads))
		if !s.AutoYes {
			if s.Confirm == nil || !s.Confirm("Continue installing the archives that did download?") {
				return nil, fmt.Errorf("%w: aborted after download failures", domain.ErrCancelled)
			}
		}
	}

	s.installPhase(ctx, archives, result)
	result.Failed += len(failedDownloads)

	pluginOrder := s.sortPlugins()
	if err := s.sortMods(pluginOrder); err != nil {
		return nil, err
	}

	s.Printer.Printf("Downloaded: %d / Installed: %d / Skipped: %d / Failed: %d\n",
		result.Downloaded, result.Installed, result.Skipped, result.Failed)
	return result, nil
}

// downloadPhase scans for reusable archives and downloads the rest,
// returning the archive map, the count actually downloaded, and the tasks
// that failed every retry wave.
func (s *Service) downloadPhase(ctx context.Context) (map[int]string, int, []DownloadTask, error) {
	s.Printer.Printf("Phase 1: Scanning %s for existing archives ...\n", s.Instance.DownloadsDir())

	existing, tasks, err := BuildDownloadTasks(s.Collection, s.Instance.DownloadsDir())
	if err != nil {
		return nil, 0, nil, err
	}
	s.Printer.Printf("Found %d reusable archives.\n", len(existing))

	if len(tasks) == 0 {
		return existing, 0, nil, nil
	}

	s.Printer.Printf("Phase 1b: Downloading %d archives ...\n", len(tasks))
	coordinator := &DownloadCoordinator{
		Resolver:     s.Client,
		Downloader:   s.Downloader,
		Printer:      s.Printer,
		GameDomain:   s.Collection.GameDomain,
		DownloadsDir: s.Instance.DownloadsDir(),
	}
	downloaded, failed := coordinator.Run(ctx, s.Collection, tasks, PoolSize())

	for idx, path := range downloaded {
		existing[idx] = path
	}
	return existing, len(downloaded), failed, nil
}

// installPhase builds install tasks for every mod whose archive is present
// and whose destination folder does not already exist, then runs the pool.
func (s *Service) installPhase(ctx context.Context, archives map[int]string, result *RunResult) {
	scratchRoot := filepath.Join(s.Instance.Root, scratchDirName)
	defer os.RemoveAll(scratchRoot)

	// Phased mods install in phase order; ties keep descriptor order
	order := make([]int, len(s.Collection.Mods))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return s.Collection.Mods[order[a]].Phase < s.Collection.Mods[order[b]].Phase
	})

	var tasks []InstallTask
	for _, i := range order {
		m := &s.Collection.Mods[i]
		archive, ok := archives[i]
		if !ok {
			continue
		}
		dest := filepath.Join(s.Instance.ModsDir(), m.FolderName)
		if dirExistsNonEmpty(dest) {
			// An interrupted run can leave a partial folder here; without a
			// manifest row it cannot be told apart from a good install
			result.Skipped++
			if s.Manifest != nil {
				if row, err := s.Manifest.GetInstall(m.FolderName); err == nil && row == nil {
					result.Unverified++
				}
			}
			continue
		}
		tasks = append(tasks, InstallTask{
			ModIndex:    i,
			Ordinal:     len(tasks),
			ModName:     m.Name,
			ArchivePath: archive,
			DestDir:     dest,
			ScratchDir:  filepath.Join(scratchRoot, fmt.Sprintf("%04d-%s", len(tasks), m.FolderName)),
			Choices:     m.Choices,
			Expected:    m.ExpectedPaths,
		})
	}

	s.Printer.Printf("Phase 2: Installing %d mods ...\n", len(tasks))
	installer := &Installer{Extractor: s.Extractor, Printer: s.Printer}
	installed, failed := installer.RunPool(ctx, tasks, PoolSize())
	result.Installed = int(installed)
	result.Failed += int(failed)

	if result.Unverified > 0 {
		s.Printer.Printf("%d existing mod folders are unverified (no manifest record).\n", result.Unverified)
	}

	if s.Manifest != nil {
		for _, task := range tasks {
			m := &s.Collection.Mods[task.ModIndex]
			if !dirExistsNonEmpty(task.DestDir) {
				continue
			}
			_ = s.Manifest.RecordInstall(&db.InstalledMod{
				FolderName: m.FolderName,
				ModName:    m.Name,
				ModID:      m.ModID,
				FileID:     m.FileID,
				MD5:        m.MD5,
				Collection: s.Collection.Name,
				Status:     "installed",
			})
		}
	}
}

// sortPlugins produces plugins.txt, falling back to the collection's own
// plugin order when sorting fails.
func (s *Service) sortPlugins() []string {
	s.Printer.Printf("Generating plugins.txt\n")

	wanted := s.Collection.EnabledPlugins()
	order := wanted

	if strings.EqualFold(s.Collection.GameDomain, "skyrimspecialedition") {
		var modDirs []string
		for i := range s.Collection.Mods {
			dir := filepath.Join(s.Instance.ModsDir(), s.Collection.Mods[i].FolderName)
			if info, err := os.Stat(dir); err == nil && info.IsDir() {
				modDirs = append(modDirs, dir)
			}
		}
		hs := sorter.NewHeaderSorter(sorter.PluginSortInput{
			GamePath:     s.Instance.GamePath(),
			LocalAppData: s.Instance.LocalAppData(),
			ModDirs:      modDirs,
			Rules:        s.Collection.PluginRules,
		})
		if sorted, err := hs.SortPlugins(wanted); err == nil {
			order = sorted
		} else {
			s.Printer.Printf("Plugin sort failed (%v); using collection order.\n", err)
		}
	}

	if err := s.Instance.WritePlugins(s.Profile, order); err != nil {
		s.Printer.Printf("Writing plugins.txt failed: %v\n", err)
	}
	return order
}

// sortMods produces modlist.txt from the ensemble sorter
func (s *Service) sortMods(pluginOrder []string) error {
	s.Printer.Printf("Generating modlist.txt\n")

	modPlugins := make(map[int][]string)
	for i := range s.Collection.Mods {
		dir := filepath.Join(s.Instance.ModsDir(), s.Collection.Mods[i].FolderName)
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if !e.IsDir() && isPluginName(e.Name()) {
				modPlugins[i] = append(modPlugins[i], e.Name())
			}
		}
	}

	order, warnings := sorter.SortMods(sorter.ModSortInput{
		Mods:        s.Collection.Mods,
		Rules:       s.Collection.ModRules,
		PluginOrder: pluginOrder,
		ModPlugins:  modPlugins,
	})
	for _, w := range warnings {
		s.Printer.Printf("Warning: %s\n", w)
	}

	// Install order comes back lowest priority first; the file wants the
	// winner on top
	folders := make([]string, 0, len(order))
	for i := len(order) - 1; i >= 0; i-- {
		folders = append(folders, s.Collection.Mods[order[i]].FolderName)
	}
	return s.Instance.WriteModlist(s.Profile, folders)
}

// QueryResult is the machine-readable summary behind --query
type QueryResult struct {
	CollectionName string
	GameDomain     string
	TotalMods      int
	ToDownload     int
	AlreadyHave    int
	Skipped        int
	DownloadBytes  int64
	InstallBytes   int64
	Queue          []DownloadTask
	Premium        bool
}

// Query computes the download workload without touching anything
func (s *Service) Query(ctx context.Context) (*QueryResult, error) {
	for i := range s.Collection.Mods {
		m := &s.Collection.Mods[i]
		m.FolderName = domain.FolderNameFor(m)
	}

	existing, tasks, err := BuildDownloadTasks(s.Collection, s.Instance.DownloadsDir())
	if err != nil {
		return nil, err
	}

	q := &QueryResult{
		CollectionName: s.Collection.Name,
		GameDomain:     s.Collection.GameDomain,
		TotalMods:      len(s.Collection.Mods),
		AlreadyHave:    len(existing),
	}

	for i := range s.Collection.Mods {
		m := &s.Collection.Mods[i]
		if dirExistsNonEmpty(filepath.Join(s.Instance.ModsDir(), m.FolderName)) {
			q.Skipped++
		}
		q.InstallBytes += m.Size
	}
	for _, t := range tasks {
		q.ToDownload++
		q.DownloadBytes += t.Size
		q.Queue = append(q.Queue, t)
	}

	if s.Client.IsAuthenticated() {
		if v, err := s.Client.Validate(ctx); err == nil {
			q.Premium = v.IsPremium
		}
	}
	return q, nil
}

// SatisfyNXM downloads a single queued archive from an nxm:// link. The
// link carries the key and expiry that let non-premium accounts resolve a
// CDN URL for exactly one file.
func (s *Service) SatisfyNXM(ctx context.Context, nxmLink string) error {
	m := NXMURLPattern.FindStringSubmatch(nxmLink)
	if m == nil {
		return fmt.Errorf("unrecognised nxm link: %s", nxmLink)
	}
	gameDomain := m[1]
	modID, _ := strconv.ParseInt(m[2], 10, 64)
	fileID, _ := strconv.ParseInt(m[3], 10, 64)

	parsed, err := url.Parse(nxmLink)
	if err != nil {
		return fmt.Errorf("parsing nxm link: %w", err)
	}
	key := parsed.Query().Get("key")
	expires := parsed.Query().Get("expires")

	uris, err := s.Client.ResolveDownloadKeyed(ctx, gameDomain, modID, fileID, key, expires)
	if err != nil {
		return err
	}
	if len(uris) == 0 {
		return fmt.Errorf("%w: nxm link did not yield a download", domain.ErrDownloadFailed)
	}

	for i := range s.Collection.Mods {
		mod := &s.Collection.Mods[i]
		if mod.ModID != modID || mod.FileID != fileID {
			continue
		}
		dest := filepath.Join(s.Instance.DownloadsDir(),
			domain.ArchiveNameFor(mod, urlExtension(uris[0])))
		s.Printer.Printf("Downloading: %s\n", mod.Name)
		return s.Downloader.DownloadWithProgress(ctx, nexusmods.EncodeURLSpaces(uris[0]), dest, nil)
	}
	return fmt.Errorf("nxm link does not match any mod in this collection (mod %d, file %d)", modID, fileID)
}

func dirExistsNonEmpty(dir string) bool {
	entries, err := os.ReadDir(dir)
	return err == nil && len(entries) > 0
}

func isPluginName(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".esp", ".esm", ".esl":
		return true
	}
	return false
}
