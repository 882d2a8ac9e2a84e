package cmd

// Description is the text shown above the command list in --help
const Description = `liveserve - serve local folders as static sites

A terminal dashboard for serving folders over HTTP, one server per folder,
with live reload, history, favorites and aliases.

Interactive Mode:
  Run without a command to start the dashboard, where you can:
  - Press space to start or stop the selected folder
  - Press n to type a folder path, or p to browse for one
  - Press 'o' to open a running site in the browser, 'y' to copy its URL
  - Press f to favorite a folder and a to give it an alias
  - Use tab to switch between Servers, History, Favorites and Logs
  - Use '/' to filter the current list

  Launching liveserve again with a folder while the dashboard is open
  hands the folder to the running dashboard.

Examples:
  liveserve                          Start the dashboard
  liveserve ~/sites/blog             Start the dashboard serving a folder
  liveserve serve ./public -p 3000   Serve without the dashboard
  liveserve history prune -y         Forget folders that no longer exist
  liveserve settings set defaultPort 9000

Project Repository: https://github.com/xlttj/liveserve`
