package main

import (
	"errors"
	"log/slog"
	"os"

	"github.com/urfave/cli"

	"github.com/mfava/dotmatrix/dotmatrix"
	"github.com/mfava/dotmatrix/dotmatrix/render"
)

func main() {
	app := cli.NewApp()
	app.Name = "dotmatrix"
	app.Description = "A Game Boy and Game Boy Color emulator"
	app.Usage = "dotmatrix [options] <ROM file>"
	app.Version = "1.0.0"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "rom",
			Usage: "Path to the ROM file",
		},
		cli.StringFlag{
			Name:  "save",
			Usage: "Path to the battery save file (default: <rom>.sav)",
		},
		cli.BoolFlag{
			Name:  "cgb",
			Usage: "Emulate the color unit (enables double speed)",
		},
		cli.BoolFlag{
			Name:  "headless",
			Usage: "Run the emulator without a graphical interface",
		},
		cli.IntFlag{
			Name:  "frames",
			Usage: "Number of frames to run in headless mode (required for headless)",
			Value: 0,
		},
		cli.BoolFlag{
			Name:  "debug",
			Usage: "Enable debug logging",
		},
	}
	app.Action = runEmulator

	if err := app.Run(os.Args); err != nil {
		slog.Error("error running emulator", "error", err)
		os.Exit(1)
	}
}

func runEmulator(c *cli.Context) error {
	level := slog.LevelInfo
	if c.Bool("debug") {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})))

	romPath := c.String("rom")
	if romPath == "" {
		if c.NArg() > 0 {
			romPath = c.Args().Get(0)
		} else {
			cli.ShowAppHelp(c)
			return errors.New("no ROM path provided")
		}
	}

	rom, err := os.ReadFile(romPath)
	if err != nil {
		return err
	}
	slog.Info("loaded ROM", "path", romPath, "bytes", len(rom))

	model := dotmatrix.DMG
	if c.Bool("cgb") {
		model = dotmatrix.CGB
	}
	machine := dotmatrix.New(dotmatrix.WithModel(model))

	savePath := c.String("save")
	if savePath == "" {
		savePath = romPath + ".sav"
	}
	savedRAM, _ := os.ReadFile(savePath)

	if err := machine.LoadCartridge(rom, savedRAM); err != nil {
		return err
	}
	defer persistSave(machine, savePath)

	if c.Bool("headless") {
		frames := c.Int("frames")
		if frames <= 0 {
			return errors.New("headless mode requires --frames option with a positive value")
		}
		slog.Info("running headless", "frames", frames)
		for i := 0; i < frames; i++ {
			machine.RunFrame()
			if i%60 == 0 {
				slog.Debug("frame progress", "completed", i+1, "total", frames)
			}
		}
		slog.Info("headless execution completed", "frames", frames)
		return nil
	}

	renderer, err := render.NewTerminalRenderer(machine)
	if err != nil {
		return err
	}
	return renderer.Run()
}

func persistSave(machine *dotmatrix.Machine, savePath string) {
	data := machine.SaveRAM()
	if data == nil {
		return
	}
	if err := os.WriteFile(savePath, data, 0644); err != nil {
		slog.Error("failed to write save file", "path", savePath, "error", err)
		return
	}
	slog.Info("battery save written", "path", savePath, "bytes", len(data))
}
