// Command rv64emu runs a flat RV64I machine-code image as a bare-metal
// program: it loads the file at dram.Base, drives the hart to completion,
// and dumps the final register and CSR state.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/kr/pretty"
	"github.com/sirupsen/logrus"

	"github.com/rv64emu/rv64emu/pkg/cpu"
)

func main() {
	log.SetFlags(0)
	verbose := flag.Bool("v", false, "trace every retired instruction")
	debug := flag.Bool("d", false, "single-step: disassemble and wait for Enter before each instruction")
	flag.Parse()

	if flag.NArg() != 1 {
		log.Fatal("usage: rv64emu [-v] [-d] <machine-code-file>")
	}

	image, err := os.ReadFile(flag.Arg(0))
	if err != nil {
		log.Fatal(err)
	}

	c, err := cpu.New(image)
	if err != nil {
		log.Fatal(err)
	}
	if *verbose {
		c.Log.(*logrus.Logger).SetLevel(logrus.DebugLevel)
	}

	if *debug {
		runSingleStep(c)
	} else if err := c.Run(); err != nil {
		log.Fatal(err)
	}

	fmt.Println("registers:")
	pretty.Println(c.DumpRegisters())
	fmt.Println("non-zero CSRs:")
	pretty.Println(c.DumpCSRs())
}

// runSingleStep prints the disassembly of the next instruction and blocks
// on stdin before letting it retire.
func runSingleStep(c *cpu.CPU) {
	for {
		inst, err := c.Peek()
		if err != nil {
			return
		}
		fmt.Printf("rv64emu: pc=0x%x %s\n", c.PC, cpu.Disassemble(inst))
		fmt.Println("rv64emu: paused...")
		fmt.Scanln()
		if cont, _ := c.Step(); !cont {
			return
		}
	}
}
