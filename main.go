package main

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/z46-dev/go-logger"

	"github.com/serverstack/ubuntu-server-netboot/config"
	"github.com/serverstack/ubuntu-server-netboot/iso"
	"github.com/serverstack/ubuntu-server-netboot/mirror"
	"github.com/serverstack/ubuntu-server-netboot/stage"
)

var (
	imageURL       string
	isoPath        string
	outDir         string
	extraArgs      string
	autoinstallURL string
	configPath     string
)

var log *logger.Logger = logger.NewLogger().SetPrefix("[USN]", logger.BoldWhite)

var rootCmd = &cobra.Command{
	Use:           "ubuntu-server-netboot",
	Short:         "Generate a netboot tree from an Ubuntu Server live ISO",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		if err = config.Init(configPath); err != nil {
			return
		}

		iso.SetReaderTool(config.Config.Reader.Tool)

		var dl *mirror.Downloader = mirror.NewDownloader()

		var localISO string = isoPath
		if localISO == "" {
			var remove func()
			if localISO, remove, err = dl.DownloadISO(imageURL); err != nil {
				return
			}

			defer remove()
		}

		var img *iso.ServerLiveISO
		if img, err = iso.Open(localISO); err != nil {
			return
		}

		log.Basicf("Image identity: %s %s (%s)\n", img.Version, img.Codename, img.Architecture)

		_, err = stage.New(img, dl, stage.Options{
			ImageURL:       imageURL,
			OutDir:         outDir,
			ExtraArgs:      extraArgs,
			AutoinstallURL: autoinstallURL,
		}).Run()

		return
	},
}

func main() {
	rootCmd.Flags().StringVar(&imageURL, "url", "", "URL to Server Live ISO to be downloaded at install-time")
	rootCmd.Flags().StringVar(&isoPath, "iso", "", "Local copy of Server Live ISO (--url should point to a copy of the same file)")
	rootCmd.Flags().StringVarP(&outDir, "out-dir", "o", "", "Output directory (default: a temporary directory)")
	rootCmd.Flags().StringVarP(&extraArgs, "extra-args", "e", "", "Any additional kernel command line arguments")
	rootCmd.Flags().StringVar(&autoinstallURL, "autoinstall-url", "", "URL to Autoinstall config file to be used during Subiquity installation")
	rootCmd.Flags().StringVar(&configPath, "config", "", "Path to a TOML configuration file")
	_ = rootCmd.MarkFlagRequired("url")

	if err := rootCmd.Execute(); err != nil {
		log.Errorf("%v\n", err)
		os.Exit(1)
	}
}
