// Package main provides the verso CLI.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"verso/internal/cache"
	"verso/internal/changeset"
	"verso/internal/config"
	"verso/internal/detect"
	"verso/internal/gitio"
	"verso/internal/manifest"
	"verso/internal/pkggraph"
	"verso/internal/plan"
	"verso/internal/release"
	"verso/internal/resolve"
	"verso/internal/version"
)

var rootCmd = &cobra.Command{
	Use:   "verso",
	Short: "Verso - changeset-driven version management for JS/TS workspaces",
	Long:  `Verso detects which workspace packages changed between git refs, resolves target versions from pending changesets under an independent or unified strategy, and manages the changeset lifecycle across branches and releases.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verbose {
			log.SetLevel(logrus.DebugLevel)
		}
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize verso in the current directory",
	RunE:  runInit,
}

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Compute the versioning plan from pending changesets",
	Long: `Compute the versioning plan from pending changesets.

Examples:
  verso plan                              # All pending changesets
  verso plan --since main                 # Only changesets matching packages changed since main
  verso plan --strategy unified           # One shared version across the workspace
  verso plan --snapshot                   # Branch-specific snapshot versions
  verso plan --prerelease beta            # Prerelease versions (-beta.N)`,
	RunE: runPlan,
}

var releaseCmd = &cobra.Command{
	Use:   "release",
	Short: "Compute the plan, write manifests, and archive consumed changesets",
	RunE:  runRelease,
}

var detectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Show packages affected by changes in a git ref range",
	RunE:  runDetect,
}

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Show the workspace dependency graph",
	RunE:  runGraph,
}

var graphDependentsCmd = &cobra.Command{
	Use:   "dependents <package>",
	Short: "Show the transitive dependents of a package",
	Args:  cobra.ExactArgs(1),
	RunE:  runGraphDependents,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Inspect and bump package versions",
}

var versionBumpCmd = &cobra.Command{
	Use:   "bump <package> <level>",
	Short: "Bump a single package version and write its manifest",
	Args:  cobra.ExactArgs(2),
	RunE:  runVersionBump,
}

var snapshotCmd = &cobra.Command{
	Use:   "snapshot [branch]",
	Short: "Preview snapshot versions for a branch",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runSnapshot,
}

var changesetCmd = &cobra.Command{
	Use:     "changeset",
	Aliases: []string{"cs"},
	Short:   "Manage changesets",
}

var csCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a pending changeset for the current branch",
	RunE:  runCsCreate,
}

var csUpdateCmd = &cobra.Command{
	Use:   "update [id-or-branch]",
	Short: "Update the pending changeset (append packages/commits, replace bump)",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runCsUpdate,
}

var csListCmd = &cobra.Command{
	Use:   "list",
	Short: "List active changesets",
	RunE:  runCsList,
}

var csShowCmd = &cobra.Command{
	Use:   "show <id-or-branch>",
	Args:  cobra.ExactArgs(1),
	Short: "Show one changeset",
	RunE:  runCsShow,
}

var csDeleteCmd = &cobra.Command{
	Use:   "delete <id-or-branch>",
	Args:  cobra.ExactArgs(1),
	Short: "Delete an active changeset",
	RunE:  runCsDelete,
}

var csArchiveCmd = &cobra.Command{
	Use:   "archive <id-or-branch>",
	Args:  cobra.ExactArgs(1),
	Short: "Archive a changeset with release metadata",
	RunE:  runCsArchive,
}

var csHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "List archived changesets",
	RunE:  runCsHistory,
}

var csCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify a pending changeset covers the changes on this branch",
	Long: `Verify a pending changeset covers the changes on this branch.

Exits non-zero when packages changed since --since but no pending changeset
exists for the current branch. Intended as a CI gate.`,
	RunE: runCsCheck,
}

var (
	verbose bool
	log     = logrus.New()

	planSince      string
	planUntil      string
	planStrategy   string
	planSnapshot   bool
	planPrerelease string
	planOverrides  []string
	planJSON       bool

	detectSince string
	detectUntil string
	detectJSON  bool

	graphJSON bool

	csBump     string
	csBranch   string
	csPackages []string
	csEnvs     []string
	csMessage  string
	csAuto     bool
	csSince    string
	csJSON     bool

	csArchiveVersion string
	csArchiveTag     string

	checkSince string
)

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	planCmd.Flags().StringVar(&planSince, "since", "", "Base git ref for change detection")
	planCmd.Flags().StringVar(&planUntil, "until", "", "Head git ref (default HEAD)")
	planCmd.Flags().StringVar(&planStrategy, "strategy", "", "Versioning strategy (independent or unified)")
	planCmd.Flags().BoolVar(&planSnapshot, "snapshot", false, "Format versions with the snapshot template")
	planCmd.Flags().StringVar(&planPrerelease, "prerelease", "", "Prerelease tag (e.g. beta)")
	planCmd.Flags().StringSliceVar(&planOverrides, "set", nil, "Pin a package version (pkg=version, repeatable)")
	planCmd.Flags().BoolVar(&planJSON, "json", false, "Output as JSON")

	releaseCmd.Flags().StringVar(&planSince, "since", "", "Base git ref for change detection")
	releaseCmd.Flags().StringVar(&planUntil, "until", "", "Head git ref (default HEAD)")
	releaseCmd.Flags().StringVar(&planStrategy, "strategy", "", "Versioning strategy (independent or unified)")

	detectCmd.Flags().StringVar(&detectSince, "since", "", "Base git ref (required)")
	detectCmd.Flags().StringVar(&detectUntil, "until", "", "Head git ref (default HEAD)")
	detectCmd.Flags().BoolVar(&detectJSON, "json", false, "Output as JSON")
	detectCmd.MarkFlagRequired("since")

	graphCmd.Flags().BoolVar(&graphJSON, "json", false, "Output as JSON")

	csCreateCmd.Flags().StringVar(&csBump, "bump", "patch", "Bump level (major, minor, patch, none)")
	csCreateCmd.Flags().StringVar(&csBranch, "branch", "", "Branch (default: current git branch)")
	csCreateCmd.Flags().StringSliceVar(&csPackages, "package", nil, "Target package (repeatable)")
	csCreateCmd.Flags().StringSliceVar(&csEnvs, "env", nil, "Target environment (repeatable)")
	csCreateCmd.Flags().StringVar(&csMessage, "message", "", "Free-text message")
	csCreateCmd.Flags().BoolVar(&csAuto, "auto", false, "Auto-detect target packages from git changes")
	csCreateCmd.Flags().StringVar(&csSince, "since", "", "Base ref for --auto detection")

	csUpdateCmd.Flags().StringVar(&csBump, "bump", "", "Replace the bump level")
	csUpdateCmd.Flags().StringSliceVar(&csPackages, "package", nil, "Append target package (repeatable)")
	csUpdateCmd.Flags().StringSliceVar(&csEnvs, "env", nil, "Replace target environments")
	csUpdateCmd.Flags().StringVar(&csMessage, "message", "", "Replace the message")
	csUpdateCmd.Flags().StringVar(&csSince, "since", "", "Append commits since this ref")

	csListCmd.Flags().BoolVar(&csJSON, "json", false, "Output as JSON")
	csShowCmd.Flags().BoolVar(&csJSON, "json", false, "Output as JSON")
	csHistoryCmd.Flags().BoolVar(&csJSON, "json", false, "Output as JSON")

	csArchiveCmd.Flags().StringVar(&csArchiveVersion, "version", "", "Released version (required)")
	csArchiveCmd.Flags().StringVar(&csArchiveTag, "tag", "", "Release tag")
	csArchiveCmd.MarkFlagRequired("version")

	csCheckCmd.Flags().StringVar(&checkSince, "since", "", "Base git ref (required)")
	csCheckCmd.MarkFlagRequired("since")

	graphCmd.AddCommand(graphDependentsCmd)
	versionCmd.AddCommand(versionBumpCmd)

	changesetCmd.AddCommand(csCreateCmd)
	changesetCmd.AddCommand(csUpdateCmd)
	changesetCmd.AddCommand(csListCmd)
	changesetCmd.AddCommand(csShowCmd)
	changesetCmd.AddCommand(csDeleteCmd)
	changesetCmd.AddCommand(csArchiveCmd)
	changesetCmd.AddCommand(csHistoryCmd)
	changesetCmd.AddCommand(csCheckCmd)

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(releaseCmd)
	rootCmd.AddCommand(detectCmd)
	rootCmd.AddCommand(graphCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(snapshotCmd)
	rootCmd.AddCommand(changesetCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// app bundles everything one invocation needs. The workspace and graph are
// loaded fresh per run and immutable afterwards.
type app struct {
	root  string
	cfg   config.Config
	ws    *manifest.Workspace
	graph *pkggraph.Graph
	store *changeset.Store
}

func openApp() (*app, error) {
	root, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("getting working directory: %w", err)
	}

	cfg, err := config.Load(filepath.Join(root, config.DefaultFileName))
	if err != nil {
		return nil, err
	}

	ws, err := manifest.DiscoverWorkspace(root)
	if err != nil {
		return nil, fmt.Errorf("loading workspace: %w", err)
	}

	graph, err := pkggraph.Build(ws.Packages)
	if err != nil {
		return nil, err
	}

	store := changeset.NewStore(filepath.Join(root, cfg.ChangesetDir), log)
	return &app{root: root, cfg: cfg, ws: ws, graph: graph, store: store}, nil
}

func (a *app) repo() (*gitio.Repository, error) {
	return gitio.Open(a.root)
}

func (a *app) planner() (*release.Planner, error) {
	repo, err := a.repo()
	if err != nil {
		return nil, err
	}
	return release.NewPlanner(a.ws, a.graph, repo, a.store, a.cfg, log), nil
}

func emitJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding output: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

func runInit(cmd *cobra.Command, args []string) error {
	root, err := os.Getwd()
	if err != nil {
		return err
	}

	cfg := config.Default()
	if err := os.MkdirAll(filepath.Join(root, cfg.ChangesetDir), 0755); err != nil {
		return fmt.Errorf("creating changeset directory: %w", err)
	}

	cfgPath := filepath.Join(root, config.DefaultFileName)
	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		content := `strategy: independent
propagate: true
failOnCycles: false
changesetDir: .verso/changesets
tagTemplate: "{name}@{version}"
unifiedTagTemplate: "v{version}"
snapshotTemplate: "{version}-{branch}.{short_commit}"
prereleaseTag: next
`
		if err := os.WriteFile(cfgPath, []byte(content), 0644); err != nil {
			return fmt.Errorf("writing %s: %w", config.DefaultFileName, err)
		}
	}

	fmt.Println("Initialized verso.")
	fmt.Printf("  Config:     %s\n", config.DefaultFileName)
	fmt.Printf("  Changesets: %s\n", cfg.ChangesetDir)
	return nil
}

func buildRequest(a *app) (release.Request, error) {
	req := release.Request{SinceRef: planSince, UntilRef: planUntil}

	if planStrategy != "" {
		strategy, err := plan.ParseStrategy(planStrategy)
		if err != nil {
			return req, err
		}
		req.Strategy = strategy
	}

	for _, raw := range planOverrides {
		pkg, ver, ok := strings.Cut(raw, "=")
		if !ok || pkg == "" || ver == "" {
			return req, fmt.Errorf("invalid --set value %q (expected pkg=version)", raw)
		}
		req.Overrides = append(req.Overrides, resolve.Override{PackageID: pkg, Version: ver})
	}

	if planSnapshot || planPrerelease != "" {
		repo, err := a.repo()
		if err != nil {
			return req, err
		}
		if planSnapshot {
			branch, err := repo.CurrentBranch()
			if err != nil {
				return req, err
			}
			head, err := repo.ResolveRef("HEAD")
			if err != nil {
				return req, err
			}
			req.Snapshot = &resolve.SnapshotOptions{
				Template: a.cfg.SnapshotTemplate,
				Branch:   branch,
				Commit:   head.Hash.String(),
			}
		}
		if planPrerelease != "" {
			seq, err := cache.Open(filepath.Join(a.store.Dir(), "cache"))
			if err != nil {
				return req, err
			}
			cobra.OnFinalize(func() { seq.Close() })
			req.Prerelease = &resolve.PrereleaseOptions{Tag: planPrerelease, Sequence: seq}
		}
	}
	return req, nil
}

func runPlan(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	planner, err := a.planner()
	if err != nil {
		return err
	}
	req, err := buildRequest(a)
	if err != nil {
		return err
	}

	p, err := planner.Plan(req)
	if err != nil {
		return err
	}

	if planJSON {
		return emitJSON(struct {
			*plan.Plan
			Tags []string `json:"tags"`
		}{p, planner.Tags(p)})
	}

	fmt.Printf("Plan %s (%s strategy)\n", p.ID[:8], p.Strategy)
	bumped := p.Bumped()
	if len(bumped) == 0 {
		fmt.Println("  No version changes.")
		return nil
	}
	for _, c := range p.Changes {
		if !c.WillBump {
			continue
		}
		fmt.Printf("  %-30s %s -> %s  (%s, %s)\n",
			c.PackageID, c.OldVersion, c.NewVersion, c.BumpName, c.Reason)
	}
	if tags := planner.Tags(p); len(tags) > 0 {
		fmt.Printf("Tags: %s\n", strings.Join(tags, ", "))
	}
	return nil
}

func runRelease(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	planner, err := a.planner()
	if err != nil {
		return err
	}

	req := release.Request{SinceRef: planSince, UntilRef: planUntil}
	if planStrategy != "" {
		strategy, err := plan.ParseStrategy(planStrategy)
		if err != nil {
			return err
		}
		req.Strategy = strategy
	}

	p, err := planner.Plan(req)
	if err != nil {
		return err
	}
	if len(p.Bumped()) == 0 {
		fmt.Println("Nothing to release.")
		return nil
	}

	if err := planner.Apply(p); err != nil {
		return err
	}

	for _, c := range p.Bumped() {
		fmt.Printf("  %s %s -> %s\n", c.PackageID, c.OldVersion, c.NewVersion)
	}
	fmt.Printf("Released %d package(s); %d changeset(s) archived.\n",
		len(p.Bumped()), len(p.ChangesetIDs))
	return nil
}

func runDetect(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	repo, err := a.repo()
	if err != nil {
		return err
	}

	detector := detect.NewDetector(repo, a.ws, a.graph, log)
	analysis, err := detector.DetectSince(detectSince, detectUntil)
	if err != nil {
		return err
	}

	if detectJSON {
		return emitJSON(analysis)
	}

	fmt.Printf("Changed files: %d\n", len(analysis.ChangedFiles))
	fmt.Printf("Directly affected: %s\n", joinOrNone(analysis.DirectlyAffected))
	fmt.Printf("Dependents affected: %s\n", joinOrNone(analysis.DependentsAffected))
	for _, pc := range analysis.Changes {
		fmt.Printf("  %s: %d file(s), %d commit(s)\n", pc.PackageID, len(pc.Files), len(pc.Commits))
	}
	return nil
}

func joinOrNone(ids []string) string {
	if len(ids) == 0 {
		return "(none)"
	}
	return strings.Join(ids, ", ")
}

func runGraph(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}

	if graphJSON {
		return emitJSON(map[string]interface{}{
			"packages": a.graph.PackageCount(),
			"edges":    a.graph.EdgeCount(),
			"cycles":   a.graph.DetectCycles(),
		})
	}

	fmt.Printf("Packages: %d\n", a.graph.PackageCount())
	fmt.Printf("Internal dependency edges: %d\n", a.graph.EdgeCount())
	cycles := a.graph.DetectCycles()
	if len(cycles) == 0 {
		fmt.Println("Cycles: none")
		return nil
	}
	fmt.Printf("Cycles: %d\n", len(cycles))
	for _, g := range cycles {
		fmt.Printf("  {%s}\n", strings.Join(g, ", "))
	}
	return nil
}

func runGraphDependents(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	id := args[0]
	if !a.graph.Has(id) {
		return fmt.Errorf("unknown package: %s", id)
	}
	for _, dep := range a.graph.DependentsOf(id) {
		fmt.Println(dep)
	}
	return nil
}

func runVersionBump(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}

	pkg := a.ws.Package(args[0])
	if pkg == nil {
		return fmt.Errorf("unknown package: %s", args[0])
	}
	bump, err := version.ParseBump(args[1])
	if err != nil {
		return err
	}

	next, err := version.Apply(pkg.Version, bump)
	if err != nil {
		return err
	}
	dir := filepath.Join(a.root, filepath.FromSlash(pkg.Path))
	if err := manifest.WriteVersion(dir, next); err != nil {
		return err
	}
	fmt.Printf("%s %s -> %s\n", pkg.ID, pkg.Version, next)
	return nil
}

func runSnapshot(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	repo, err := a.repo()
	if err != nil {
		return err
	}

	branch := ""
	if len(args) == 1 {
		branch = args[0]
	} else {
		branch, err = repo.CurrentBranch()
		if err != nil {
			return err
		}
	}
	head, err := repo.ResolveRef("")
	if err != nil {
		return err
	}

	for _, pkg := range a.ws.Packages {
		snap := version.FormatSnapshot(a.cfg.SnapshotTemplate, version.SnapshotContext{
			Version:   pkg.Version,
			Branch:    branch,
			Commit:    head.Hash.String(),
			Timestamp: time.Now(),
		})
		fmt.Printf("%-30s %s\n", pkg.ID, snap)
	}
	return nil
}

func runCsCreate(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}

	bump, err := version.ParseBump(csBump)
	if err != nil {
		return err
	}

	branch := csBranch
	var commits []string
	packages := csPackages

	if branch == "" || csAuto {
		repo, err := a.repo()
		if err != nil {
			return err
		}
		if branch == "" {
			branch, err = repo.CurrentBranch()
			if err != nil {
				return err
			}
		}
		if csAuto {
			if csSince == "" {
				return fmt.Errorf("--auto requires --since")
			}
			detector := detect.NewDetector(repo, a.ws, a.graph, log)
			analysis, err := detector.DetectSince(csSince, "")
			if err != nil {
				return err
			}
			packages = append(packages, analysis.DirectlyAffected...)
			for _, c := range analysis.Changes {
				commits = append(commits, c.Commits...)
			}
		}
	}

	cs, err := a.store.Create(changeset.Spec{
		Branch:       branch,
		Bump:         bump,
		Packages:     packages,
		Environments: csEnvs,
		Commits:      dedupe(commits),
		Message:      csMessage,
	})
	if err != nil {
		return err
	}

	fmt.Printf("Created changeset %s for branch %s (%s)\n", cs.ID, cs.Branch, cs.Bump)
	if len(cs.Packages) > 0 {
		fmt.Printf("  Packages: %s\n", strings.Join(cs.Packages, ", "))
	}
	return nil
}

func runCsUpdate(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}

	key := ""
	if len(args) == 1 {
		key = args[0]
	} else {
		repo, err := a.repo()
		if err != nil {
			return err
		}
		key, err = repo.CurrentBranch()
		if err != nil {
			return err
		}
	}

	patch := changeset.Patch{Packages: csPackages}
	if csBump != "" {
		bump, err := version.ParseBump(csBump)
		if err != nil {
			return err
		}
		patch.Bump = &bump
	}
	if cmd.Flags().Changed("env") {
		patch.Environments = csEnvs
	}
	if cmd.Flags().Changed("message") {
		patch.Message = &csMessage
	}
	if csSince != "" {
		repo, err := a.repo()
		if err != nil {
			return err
		}
		commits, err := repo.CommitsBetween(csSince, "")
		if err != nil {
			return err
		}
		for _, c := range commits {
			patch.Commits = append(patch.Commits, c.Hash)
		}
	}

	cs, err := a.store.Update(key, patch)
	if err != nil {
		return err
	}
	fmt.Printf("Updated changeset %s (%s, %d package(s), %d commit(s))\n",
		cs.ID, cs.Bump, len(cs.Packages), len(cs.Commits))
	return nil
}

func runCsList(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	sets, err := a.store.List(changeset.Filter{})
	if err != nil {
		return err
	}

	if csJSON {
		return emitJSON(sets)
	}
	if len(sets) == 0 {
		fmt.Println("No active changesets.")
		return nil
	}
	for _, cs := range sets {
		fmt.Printf("%s  %-24s %-6s %s\n", cs.ID, cs.Branch, cs.Bump, joinOrNone(cs.Packages))
	}
	return nil
}

func runCsShow(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	cs, err := a.store.Get(args[0])
	if err != nil {
		return err
	}

	if csJSON {
		return emitJSON(cs)
	}
	fmt.Printf("ID:       %s\n", cs.ID)
	fmt.Printf("Branch:   %s\n", cs.Branch)
	fmt.Printf("Bump:     %s\n", cs.Bump)
	fmt.Printf("Status:   %s\n", cs.Status)
	fmt.Printf("Packages: %s\n", joinOrNone(cs.Packages))
	if len(cs.Environments) > 0 {
		fmt.Printf("Envs:     %s\n", strings.Join(cs.Environments, ", "))
	}
	if cs.Message != "" {
		fmt.Printf("Message:  %s\n", cs.Message)
	}
	fmt.Printf("Commits:  %d\n", len(cs.Commits))
	return nil
}

func runCsDelete(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	if err := a.store.Delete(args[0]); err != nil {
		return err
	}
	fmt.Printf("Deleted changeset %s\n", args[0])
	return nil
}

func runCsArchive(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	archived, err := a.store.Archive(args[0], changeset.ReleaseInfo{
		Version: csArchiveVersion,
		Tag:     csArchiveTag,
	})
	if err != nil {
		return err
	}
	fmt.Printf("Archived changeset %s (released %s)\n", archived.ID, archived.Release.Version)
	return nil
}

func runCsHistory(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	history, err := a.store.History()
	if err != nil {
		return err
	}

	if csJSON {
		return emitJSON(history)
	}
	if len(history) == 0 {
		fmt.Println("No archived changesets.")
		return nil
	}
	for _, h := range history {
		fmt.Printf("%s  %-24s %-10s %s\n", h.ID, h.Branch, h.Release.Version, h.Release.Tag)
	}
	return nil
}

func runCsCheck(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	repo, err := a.repo()
	if err != nil {
		return err
	}

	detector := detect.NewDetector(repo, a.ws, a.graph, log)
	analysis, err := detector.DetectSince(checkSince, "")
	if err != nil {
		return err
	}
	if len(analysis.DirectlyAffected) == 0 {
		fmt.Println("No package changes detected; changeset not required.")
		return nil
	}

	branch, err := repo.CurrentBranch()
	if err != nil {
		return err
	}
	sets, err := a.store.List(changeset.Filter{Branch: branch, Status: changeset.StatusPending})
	if err != nil {
		return err
	}
	if len(sets) == 0 {
		return fmt.Errorf("packages changed (%s) but branch %s has no pending changeset",
			strings.Join(analysis.DirectlyAffected, ", "), branch)
	}

	fmt.Printf("OK: changeset %s covers branch %s.\n", sets[0].ID, branch)
	return nil
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	var out []string
	for _, v := range in {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}
