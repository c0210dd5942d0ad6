package processor

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"framecast/internal/adapters/storage/localfs"
	"framecast/internal/pkg/logger"
	"framecast/internal/ports"
)

// Cleanup removes render leftovers from the local storage tree.
type Cleanup struct {
	storageRoot  string
	cleanupLocal bool
	sp           ports.StorageProvider
	log          *logger.Logger
}

func NewCleanup(storageRoot string, cleanupLocal bool, sp ports.StorageProvider, log *logger.Logger) *Cleanup {
	return &Cleanup{
		storageRoot:  storageRoot,
		cleanupLocal: cleanupLocal,
		sp:           sp,
		log:          log,
	}
}

// CleanupRender removes the local artifact once it lives in remote storage.
// With localfs the local file is the artifact and stays.
func (c *Cleanup) CleanupRender(renderID, localPath string) {
	if !c.cleanupLocal || c.sp == nil || c.sp.Provider() == localfs.Name {
		return
	}
	c.remove(renderID, localPath)
}

// Discard removes whatever a failed render left behind, regardless of provider.
func (c *Cleanup) Discard(renderID, localPath string) {
	c.remove(renderID, localPath)
}

func (c *Cleanup) remove(renderID, localPath string) {
	if err := os.Remove(localPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		c.log.Warn("failed to remove local artifact", "render_id", renderID, "path", localPath, "error", err.Error())
	}
	// The render directory only goes away when empty; anything else in it is not ours.
	_ = os.Remove(filepath.Join(c.storageRoot, "renders", renderID))
}
