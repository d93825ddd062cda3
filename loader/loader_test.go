package loader_test

import (
	"os"
	"path/filepath"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/rv32pipe/loader"
)

var _ = Describe("ParseHexWords", func() {
	It("parses one word per line, skipping blanks and comments", func() {
		src := "00000013 // nop\n\n0000006f\n"
		words, err := loader.ParseHexWords("t.exe", strings.NewReader(src))
		Expect(err).NotTo(HaveOccurred())
		Expect(words).To(Equal([]uint32{0x00000013, 0x0000006f}))
	})

	It("rejects a malformed line", func() {
		_, err := loader.ParseHexWords("t.exe", strings.NewReader("not-hex\n"))
		Expect(err).To(HaveOccurred())
		Expect(err).To(BeAssignableToTypeOf(&loader.ParseError{}))
	})
})

var _ = Describe("LoadWorkload", func() {
	It("loads .exe and .data and copies both into the work directory", func() {
		srcDir, err := os.MkdirTemp("", "rv32pipe-src")
		Expect(err).NotTo(HaveOccurred())
		defer os.RemoveAll(srcDir)

		workDir, err := os.MkdirTemp("", "rv32pipe-work")
		Expect(err).NotTo(HaveOccurred())
		defer os.RemoveAll(workDir)

		Expect(os.WriteFile(filepath.Join(srcDir, "prog.exe"), []byte("00000013\n"), 0o644)).To(Succeed())
		Expect(os.WriteFile(filepath.Join(srcDir, "prog.data"), []byte("0000002a\n"), 0o644)).To(Succeed())

		wl, err := loader.LoadWorkload(srcDir, workDir, "prog")
		Expect(err).NotTo(HaveOccurred())
		Expect(wl.Text).To(Equal([]uint32{0x13}))
		Expect(wl.Data).To(Equal([]uint32{0x2a}))

		Expect(filepath.Join(workDir, "prog.exe")).To(BeAnExistingFile())
		Expect(filepath.Join(workDir, "prog.data")).To(BeAnExistingFile())
	})

	It("tolerates a missing .data file", func() {
		srcDir, err := os.MkdirTemp("", "rv32pipe-src")
		Expect(err).NotTo(HaveOccurred())
		defer os.RemoveAll(srcDir)
		workDir, err := os.MkdirTemp("", "rv32pipe-work")
		Expect(err).NotTo(HaveOccurred())
		defer os.RemoveAll(workDir)

		Expect(os.WriteFile(filepath.Join(srcDir, "prog.exe"), []byte("00000013\n"), 0o644)).To(Succeed())

		wl, err := loader.LoadWorkload(srcDir, workDir, "prog")
		Expect(err).NotTo(HaveOccurred())
		Expect(wl.Data).To(BeEmpty())
	})
})
