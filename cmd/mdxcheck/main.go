// mdxcheck audits a converted output tree: every local image reference
// in an index.mdx must resolve to a file in the bundle's images/
// directory, and orphaned image files are reported. It can also prune
// backup directories left by repeated conversion runs.
package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

func main() {
	if len(os.Args) < 3 {
		log.Fatal("Usage: mdxcheck <check|prune-backups> <output-directory>")
	}

	command := os.Args[1]
	outputDir := os.Args[2]

	switch command {
	case "check":
		if err := checkBundles(outputDir); err != nil {
			log.Fatal(err)
		}
	case "prune-backups":
		if err := pruneBackups(outputDir); err != nil {
			log.Fatal(err)
		}
	default:
		log.Fatalf("Unknown command %q", command)
	}
}

var (
	imageImportRe = regexp.MustCompile(`(?m)^import \w+ from "\./images/([^"]+)";`)
	imageRefRe    = regexp.MustCompile(`\./images/([^)\s"'}]+)`)
	backupDirRe   = regexp.MustCompile(`\.bak\.\d+$`)
)

func checkBundles(outputDir string) error {
	problems := 0
	bundles := 0

	err := filepath.WalkDir(outputDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil // Continue on errors
		}
		if d.IsDir() && backupDirRe.MatchString(d.Name()) {
			return filepath.SkipDir
		}
		if d.IsDir() || d.Name() != "index.mdx" {
			return nil
		}

		bundles++
		problems += checkBundle(path)
		return nil
	})
	if err != nil {
		return err
	}

	fmt.Printf("%d bundles checked, %d problems\n", bundles, problems)
	if problems > 0 {
		os.Exit(1)
	}
	return nil
}

// checkBundle verifies one article directory and returns the number of
// problems found.
func checkBundle(indexPath string) int {
	content, err := os.ReadFile(indexPath)
	if err != nil {
		log.Printf("Error reading %s: %v", indexPath, err)
		return 1
	}

	bundleDir := filepath.Dir(indexPath)
	imagesDir := filepath.Join(bundleDir, "images")

	referenced := make(map[string]bool)
	for _, m := range imageImportRe.FindAllStringSubmatch(string(content), -1) {
		referenced[m[1]] = true
	}
	for _, m := range imageRefRe.FindAllStringSubmatch(string(content), -1) {
		referenced[m[1]] = true
	}

	problems := 0
	for name := range referenced {
		if _, err := os.Stat(filepath.Join(imagesDir, name)); err != nil {
			log.Printf("%s: missing image %s", bundleDir, name)
			problems++
		}
	}

	entries, err := os.ReadDir(imagesDir)
	if err != nil {
		if len(referenced) > 0 {
			log.Printf("%s: images directory missing", bundleDir)
			return problems + 1
		}
		return problems
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if !referenced[entry.Name()] {
			log.Printf("%s: orphaned image %s", bundleDir, entry.Name())
			problems++
		}
	}
	return problems
}

func pruneBackups(outputDir string) error {
	entries, err := os.ReadDir(outputDir)
	if err != nil {
		return fmt.Errorf("reading output directory: %w", err)
	}

	pruned := 0
	for _, entry := range entries {
		if !entry.IsDir() || !backupDirRe.MatchString(entry.Name()) {
			continue
		}
		path := filepath.Join(outputDir, entry.Name())
		if err := os.RemoveAll(path); err != nil {
			log.Printf("Error removing %s: %v", path, err)
			continue
		}
		if !strings.HasPrefix(entry.Name(), ".") {
			fmt.Printf("Removed %s\n", path)
		}
		pruned++
	}

	fmt.Printf("%d backup directories removed\n", pruned)
	return nil
}
