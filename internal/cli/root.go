package cli

import "fmt"

func Run(args []string) error {
	if len(args) == 0 {
		printRootUsage()
		return nil
	}

	switch args[0] {
	case "submit":
		return runSubmit(args[1:])
	case "jobs":
		return runJobs(args[1:])
	case "status":
		return runStatus(args[1:])
	case "watch":
		return runWatch(args[1:])
	case "retry":
		return runRetry(args[1:])
	case "clips":
		return runClips(args[1:])
	case "edit":
		return runEdit(args[1:])
	case "download":
		return runDownload(args[1:])
	case "studio":
		return runStudio(args[1:])
	case "settings":
		return runSettings(args[1:])
	case "doctor":
		return runDoctor(args[1:])
	case "help", "-h", "--help":
		printRootUsage()
		return nil
	default:
		printRootUsage()
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func printRootUsage() {
	fmt.Println("yt-clip-studio: turn YouTube videos into short clips")
	fmt.Println()
	fmt.Println("Quick Start:")
	fmt.Println("  yt-clip-studio doctor")
	fmt.Println("  yt-clip-studio submit --url <youtube-url> --watch")
	fmt.Println("  yt-clip-studio clips --job <id>")
	fmt.Println("  yt-clip-studio download --job <id>")
	fmt.Println()
	fmt.Println("Job Commands:")
	fmt.Println("  submit    create a clip job for a YouTube link")
	fmt.Println("  jobs      list jobs (--cached reads the last saved list)")
	fmt.Println("  status    show one job")
	fmt.Println("  watch     poll a job until it completes or fails")
	fmt.Println("  retry     resubmit a failed job")
	fmt.Println()
	fmt.Println("Clip Commands:")
	fmt.Println("  clips     list the clips of a job")
	fmt.Println("  edit      change title, caption or trim range of a clip")
	fmt.Println("  download  fetch the job archive, one clip, or every clip")
	fmt.Println()
	fmt.Println("Other:")
	fmt.Println("  studio    interactive terminal studio")
	fmt.Println("  settings  show/update client settings")
	fmt.Println("  doctor    check backend reachability and local dependencies")
	fmt.Println()
	fmt.Println("Notes:")
	fmt.Println("  - Use --json on commands for machine-readable output")
	fmt.Println("  - CLIP_STUDIO_* environment variables override saved settings")
}
