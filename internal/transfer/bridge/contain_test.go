package bridge_test

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"samizdat/internal/transfer/bridge"
)

var _ = Describe("Contain", func() {
	var root string

	BeforeEach(func() {
		var err error
		root, err = filepath.EvalSymlinks(GinkgoT().TempDir())
		Expect(err).NotTo(HaveOccurred())
		Expect(os.MkdirAll(filepath.Join(root, "files", "games"), 0o755)).To(Succeed())
		Expect(os.WriteFile(filepath.Join(root, "files", "games", "doom.zip"), []byte("x"), 0o644)).To(Succeed())
	})

	It("resolves relative paths against the root", func() {
		got, err := bridge.Contain(root, "files/games/doom.zip")
		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(Equal(filepath.Join(root, "files", "games", "doom.zip")))
	})

	It("accepts the root itself", func() {
		got, err := bridge.Contain(root, root)
		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(Equal(root))
	})

	It("rejects parent traversal", func() {
		_, err := bridge.Contain(filepath.Join(root, "files"), "../secret")
		Expect(err).To(MatchError(bridge.ErrOutsideRoot))
	})

	It("rejects absolute paths elsewhere", func() {
		_, err := bridge.Contain(filepath.Join(root, "files"), "/etc/passwd")
		Expect(err).To(MatchError(bridge.ErrOutsideRoot))
	})

	It("does not mistake a sibling with a shared prefix for the root", func() {
		Expect(os.MkdirAll(filepath.Join(root, "files-private"), 0o755)).To(Succeed())
		_, err := bridge.Contain(filepath.Join(root, "files"), filepath.Join(root, "files-private"))
		Expect(err).To(MatchError(bridge.ErrOutsideRoot))
	})

	It("follows symlinks out of the root and rejects them", func() {
		outside := GinkgoT().TempDir()
		Expect(os.Symlink(outside, filepath.Join(root, "files", "escape"))).To(Succeed())

		_, err := bridge.Contain(filepath.Join(root, "files"), "escape/loot")
		Expect(err).To(MatchError(bridge.ErrOutsideRoot))
	})

	It("allows targets that do not exist yet", func() {
		got, err := bridge.Contain(root, "uploads/new/batch")
		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(Equal(filepath.Join(root, "uploads", "new", "batch")))
	})

	It("requires a root", func() {
		_, err := bridge.Contain("", "anything")
		Expect(err).To(MatchError(bridge.ErrOutsideRoot))
	})
})
